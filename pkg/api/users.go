package api

import (
	"bytes"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/router"
	"chatsync/pkg/utils"
)

func (s *Server) listUsers(ctx *fasthttp.RequestCtx) {
	rctx, cancel := requestContext()
	defer cancel()
	users, err := s.directory.ListOthers(rctx, identity(ctx).UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]any{"users": users})
}

func (s *Server) getUser(ctx *fasthttp.RequestCtx) {
	rctx, cancel := requestContext()
	defer cancel()
	u, err := s.directory.Get(rctx, router.Param(ctx, "userId"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, u)
}

// putPhoto stores the raw request body as the caller's profile image.
func (s *Server) putPhoto(ctx *fasthttp.RequestCtx) {
	userID := router.Param(ctx, "userId")
	if userID != identity(ctx).UserID {
		utils.JSONErrorFast(ctx, fasthttp.StatusForbidden, "cannot change another user's photo")
		return
	}
	filename := string(ctx.QueryArgs().Peek("filename"))
	if filename == "" {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "filename is required")
		return
	}
	body := ctx.PostBody()
	if len(body) == 0 {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "empty request body")
		return
	}
	rctx, cancel := requestContext()
	defer cancel()
	url, err := s.directory.UpdateProfileImage(rctx, userID, filename, bytes.NewReader(body))
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"profileUrl": url})
}
