package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/auth"
	"chatsync/pkg/chat"
	"chatsync/pkg/logger"
	"chatsync/pkg/router"
	"chatsync/pkg/utils"
)

const identityKey = "identity"

// public paths skip authentication
var publicPaths = map[string]bool{
	"/healthz":   true,
	"/readyz":    true,
	"/metrics":   true,
	"/v1/signup": true,
	"/v1/signin": true,
}

func identity(ctx *fasthttp.RequestCtx) chat.Identity {
	id, _ := ctx.UserValue(identityKey).(chat.Identity)
	return id
}

// observe logs and counts every request.
func (s *Server) observe(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		started := time.Now()
		next(ctx)
		route, _ := ctx.UserValue(router.RouteKey).(string)
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(ctx.Response.StatusCode())
		httpRequests.WithLabelValues(string(ctx.Method()), route, status).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
		logger.LogRequestFast(ctx, started)
	}
}

func (s *Server) cors(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	wildcard := false
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}
	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin != "" && (wildcard || allowed[origin]) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		}
		if ctx.IsOptions() {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// authenticate validates the bearer token of /v1 requests, attaches the
// caller identity and applies the per-caller rate limit.
func (s *Server) authenticate(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		key := ctx.RemoteIP().String()

		if !publicPaths[strings.TrimRight(path, "/")] {
			claims, err := s.deps.Tokens.Validate(utils.BearerToken(ctx))
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				authFailures.Inc()
				utils.JSONErrorFast(ctx, fasthttp.StatusUnauthorized, msg)
				return
			}
			ctx.SetUserValue(identityKey, chat.Identity{UserID: claims.UserID, Email: claims.Email})
			key = "user:" + claims.UserID
		}

		if s.deps.Limiter != nil && !s.deps.Limiter.Allow(key) {
			rateLimited.Inc()
			ctx.Response.Header.Set("Retry-After", "1")
			utils.JSONErrorFast(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(ctx)
	}
}
