package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/logger"
)

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config

	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		concurrency          = 0                // unlimited
		readTimeout          = 30 * time.Second // media bodies take longer than JSON
		idleTimeout          = 60 * time.Second
		maxKeepaliveDuration = 5 * time.Minute
	)
	// request bodies carry whole media files
	maxBody := int(cfg.Storage.MaxUploadSize.Int64()) + 64*1024

	a.srvFast = &fasthttp.Server{
		Name:                 "chatsync",
		Handler:              a.api.Handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxBody,
		Concurrency:          concurrency,
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		// no WriteTimeout: event streams stay open for the life of a session
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		tls := cfg.Server.TLS
		logger.Info("http_listening", "addr", a.eff.Addr, "tls", tls.CertFile != "")
		if tls.CertFile != "" {
			errCh <- a.srvFast.ListenAndServeTLS(a.eff.Addr, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
