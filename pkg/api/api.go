// Package api serves the chat core over HTTP with fasthttp.
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"chatsync/pkg/accounts"
	"chatsync/pkg/auth"
	"chatsync/pkg/blobstore"
	"chatsync/pkg/chat"
	"chatsync/pkg/docstore"
	"chatsync/pkg/router"
	"chatsync/pkg/utils"
)

type Options struct {
	AutoMarkRead   bool
	Heartbeat      time.Duration
	SessionIdle    time.Duration
	AllowedOrigins []string
	// TmpDir receives media bodies before they are handed to the pipeline.
	TmpDir  string
	Version string
}

type Deps struct {
	DB       *docstore.DB
	Blobs    blobstore.Store
	Accounts *accounts.Service
	Tokens   *auth.Issuer
	Limiter  *auth.LimiterPool
}

type Server struct {
	deps      Deps
	opts      Options
	directory *chat.Directory
	pool      *sessionPool
}

func New(deps Deps, opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	return &Server{
		deps:      deps,
		opts:      opts,
		directory: chat.NewDirectory(docstore.NewClient(deps.DB), deps.Blobs),
		pool:      newSessionPool(deps.DB, deps.Blobs, chat.SessionOptions{AutoMarkRead: opts.AutoMarkRead}, opts.SessionIdle),
	}
}

// RegisterRoutes wires every endpoint onto r.
func (s *Server) RegisterRoutes(r *router.Router) {
	r.GET("/healthz", s.healthz)
	r.GET("/readyz", s.readyz)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	// accounts
	r.POST("/v1/signup", s.signup)
	r.POST("/v1/signin", s.signin)

	// users
	r.GET("/v1/users", s.listUsers)
	r.GET("/v1/users/{userId}", s.getUser)
	r.PUT("/v1/users/{userId}/photo", s.putPhoto)

	// conversations
	r.POST("/v1/chats", s.openChat)
	r.GET("/v1/chats/{chatId}", s.getChat)
	r.GET("/v1/chats/{chatId}/messages", s.listMessages)
	r.POST("/v1/chats/{chatId}/messages", s.sendText)
	r.POST("/v1/chats/{chatId}/media", s.sendMedia)
	r.POST("/v1/chats/{chatId}/read", s.markRead)
	r.GET("/v1/chats/{chatId}/events", s.events)

	// blobs
	r.GET("/v1/blobs/chat/{chatId}/{name}", s.chatBlob)
	r.GET("/v1/blobs/users/{userId}/{name}", s.userBlob)

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "not found")
	})
}

// Handler returns the full handler chain.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.Use(
		s.observe,
		s.cors,
		s.authenticate,
	)
	s.RegisterRoutes(r)
	return r.Handler()
}

// Close ends every pooled session.
func (s *Server) Close() {
	s.pool.close()
}

func (s *Server) healthz(ctx *fasthttp.RequestCtx) {
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(ctx *fasthttp.RequestCtx) {
	if !s.deps.DB.Ready() {
		utils.JSONErrorFast(ctx, fasthttp.StatusServiceUnavailable, "store not ready")
		return
	}
	ver := s.opts.Version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "version": ver})
}
