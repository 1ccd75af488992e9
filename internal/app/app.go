package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"chatsync/internal/janitor"
	"chatsync/pkg/accounts"
	"chatsync/pkg/api"
	"chatsync/pkg/auth"
	"chatsync/pkg/blobstore"
	"chatsync/pkg/config"
	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/state"
	"chatsync/pkg/telemetry"
)

// BuildInfo is stamped in by the linker.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// App groups server state and components.
type App struct {
	eff   config.EffectiveConfigResult
	paths state.Paths
	build BuildInfo

	db      *docstore.DB
	blobs   *blobstore.FS
	limiter *auth.LimiterPool
	api     *api.Server
	srvFast *fasthttp.Server

	janitor       *janitor.Janitor
	janitorCancel context.CancelFunc
}

// New opens the stores and wires the API. It does not listen; Run does.
// The state directories under paths must already exist.
func New(eff config.EffectiveConfigResult, paths state.Paths, build BuildInfo) (*App, error) {
	if eff.Config == nil {
		return nil, errors.New("effective config is nil")
	}
	if paths.Docs == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}
	cfg := eff.Config

	if err := telemetry.Init(paths.Tel, telemetry.Options{
		SampleRate:    cfg.Telemetry.SampleRate,
		SlowThreshold: cfg.Telemetry.SlowThreshold.Duration(),
		BufferSize:    int(cfg.Telemetry.BufferSize.Int64()),
		FlushInterval: cfg.Telemetry.FlushInterval.Duration(),
		MaxFileSize:   cfg.Telemetry.FileMaxSize.Int64(),
	}); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	db, err := docstore.Open(paths.Docs)
	if err != nil {
		telemetry.Close()
		return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Docs, err)
	}

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = "http://" + eff.Addr
	}
	blobs, err := blobstore.NewFS(paths.Blobs, blobstore.Options{
		PublicURL: publicURL,
		MaxSize:   cfg.Storage.MaxUploadSize.Int64(),
		MinFree:   uint64(cfg.Storage.MinFreeDisk.Int64()),
	})
	if err != nil {
		_ = db.Close()
		telemetry.Close()
		return nil, err
	}

	tokens := auth.NewIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL.Duration())
	limiter := auth.NewLimiterPool(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst)

	a := &App{
		eff:     eff,
		paths:   paths,
		build:   build,
		db:      db,
		blobs:   blobs,
		limiter: limiter,
	}
	a.api = api.New(api.Deps{
		DB:       db,
		Blobs:    blobs,
		Accounts: accounts.NewService(db, tokens),
		Tokens:   tokens,
		Limiter:  limiter,
	}, api.Options{
		AutoMarkRead:   cfg.Realtime.AutoMarkRead,
		Heartbeat:      cfg.Realtime.Heartbeat.Duration(),
		SessionIdle:    cfg.Realtime.SessionIdle.Duration(),
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		TmpDir:         paths.Tmp,
		Version:        build.Version,
	})

	if cfg.Janitor.Enabled {
		j, err := janitor.New(blobs, janitor.Options{
			Cron:       cfg.Janitor.Cron,
			StagingTTL: cfg.Janitor.StagingTTL.Duration(),
			DryRun:     cfg.Janitor.DryRun,
			LockDir:    paths.State,
		})
		if err != nil {
			a.api.Close()
			_ = a.closeStores()
			return nil, err
		}
		a.janitor = j
	}
	return a, nil
}

// Run starts the janitor and the HTTP server, and blocks until ctx is
// done or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.janitor != nil {
		a.janitorCancel = a.janitor.Start(ctx)
	} else {
		logger.Info("janitor_disabled")
	}

	errCh := a.startHTTP(ctx)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting requests, ends live sessions and closes the
// stores. It is bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutdown_started")
	if a.janitorCancel != nil {
		a.janitorCancel()
	}

	// sessions first so event streams return and the server can drain
	a.api.Close()
	var errs []error
	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("http shutdown: %w", ctx.Err()))
		}
	}
	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	logger.Info("shutdown_complete")
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	a.limiter.Close()
	err := a.db.Close()
	telemetry.Close()
	if err != nil {
		return fmt.Errorf("close docstore: %w", err)
	}
	return nil
}

// printBanner prints the startup settings block.
func (a *App) printBanner() {
	cfg := a.eff.Config
	ver := a.build.Version
	if ver == "" {
		ver = "dev"
	}
	if a.build.Commit != "" && a.build.Commit != "none" {
		ver += " (" + a.build.Commit + ")"
	}
	if a.build.BuildDate != "" && a.build.BuildDate != "unknown" {
		ver += " @ " + a.build.BuildDate
	}
	logger.LogConfigSummary("chatsync", []string{
		"version: " + ver,
		"listen: " + a.eff.Addr,
		"data: " + a.paths.DB,
		"config_source: " + a.eff.Source,
		"max_upload: " + humanize.IBytes(uint64(cfg.Storage.MaxUploadSize.Int64())),
		"min_free_disk: " + humanize.IBytes(uint64(cfg.Storage.MinFreeDisk.Int64())),
		"token_ttl: " + cfg.Security.TokenTTL.Duration().String(),
		fmt.Sprintf("rate_limit: %s rps, burst %d", humanize.Ftoa(cfg.Security.RateLimit.RPS), cfg.Security.RateLimit.Burst),
		fmt.Sprintf("auto_mark_read: %v", cfg.Realtime.AutoMarkRead),
		fmt.Sprintf("janitor: %v (%s)", cfg.Janitor.Enabled, cfg.Janitor.Cron),
		"started: " + time.Now().Format(time.RFC3339),
	})
}
