package api

import (
	"github.com/valyala/fasthttp"

	"chatsync/pkg/utils"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) signup(ctx *fasthttp.RequestCtx) {
	var req signupRequest
	if !readBody(ctx, &req) {
		return
	}
	rctx, cancel := requestContext()
	defer cancel()
	sess, err := s.deps.Accounts.Signup(rctx, req.Email, req.Password, req.Name)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusCreated, sess)
}

func (s *Server) signin(ctx *fasthttp.RequestCtx) {
	var req signinRequest
	if !readBody(ctx, &req) {
		return
	}
	rctx, cancel := requestContext()
	defer cancel()
	sess, err := s.deps.Accounts.Signin(rctx, req.Email, req.Password)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, sess)
}
