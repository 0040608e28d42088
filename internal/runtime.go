package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/atelier/internal/cache"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/export"
	"github.com/starford/atelier/internal/identity"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/remote"
	"github.com/starford/atelier/internal/telemetry"
)

// Runtime holds the wired dependencies shared by the server, the MCP
// server and the one-shot commands.
type Runtime struct {
	Config  *Config
	Logger  *slog.Logger
	Session *identity.Session
	Metrics *telemetry.Metrics
	Cache   *cache.DB // nil when disabled

	views     []*collection.Controller
	fileToken *identity.FileToken
}

// Open wires the remote client, cache, export target and one unmounted view
// per scope.
func Open(ctx context.Context, opts ...Option) (*Runtime, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}

	rt := &Runtime{Config: cfg, Logger: logger, Metrics: telemetry.New()}

	var tokens identity.TokenSource = identity.StaticToken(cfg.Identity.Token)
	if cfg.Identity.TokenFile != "" {
		ft, err := identity.NewFileToken(cfg.Identity.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("load token file: %w", err)
		}
		rt.fileToken = ft
		tokens = ft
	}
	session, err := identity.NewSession(ctx, tokens, cfg.Identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	rt.Session = session

	client, err := remote.New(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
		Burst:     cfg.Remote.Burst,
	}, tokens, remote.WithMetrics(rt.Metrics), remote.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init remote client: %w", err)
	}

	saver, err := newSaver(ctx, cfg.Export)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled() {
		db, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		rt.Cache = db
	}

	sinks := notice.Fanout{notice.LogSink{Logger: logger}}
	sinks = append(sinks, app.notices...)

	scopes := app.scopes
	if len(scopes) == 0 {
		scopes = []remote.Scope{remote.ScopeOwn, remote.ScopeCommunity}
	}
	for _, scope := range scopes {
		vopts := collection.Options{
			Scope:       scope,
			UserID:      session.UserID,
			PageSize:    cfg.Gallery.PageSize,
			Saver:       saver,
			CallTimeout: cfg.Gallery.CallTimeout,
			Notices:     sinks,
			Metrics:     rt.Metrics,
			Logger:      logger,
		}
		if rt.Cache != nil {
			vopts.Cache = rt.Cache
		}
		rt.views = append(rt.views, collection.New(client, vopts))
	}

	logger.Info("Configuration loaded",
		slog.String("remote", cfg.Remote.BaseURL),
		slog.String("user_id", session.UserID),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("export_target", cfg.Export.Target),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return rt, nil
}

func newSaver(ctx context.Context, cfg ExportConfig) (export.Saver, error) {
	switch cfg.Target {
	case ExportTargetS3:
		s, err := export.NewS3SaverFromConfig(ctx, cfg.S3Config())
		if err != nil {
			return nil, fmt.Errorf("init export bucket: %w", err)
		}
		return s, nil
	default:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
		s, err := export.NewDirSaver(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("init export dir: %w", err)
		}
		return s, nil
	}
}

// Views returns the views in scope order.
func (rt *Runtime) Views() []*collection.Controller { return rt.views }

// View returns the view for scope, or nil when it was not opened.
func (rt *Runtime) View(scope remote.Scope) *collection.Controller {
	for _, v := range rt.views {
		if v.Scope() == scope {
			return v
		}
	}
	return nil
}

// Mount mounts every view. A view that cannot be loaded stays mounted and
// empty; the joined errors are returned.
func (rt *Runtime) Mount(ctx context.Context) error {
	var errs []error
	for _, v := range rt.views {
		if err := v.Mount(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mount %s: %w", v.Scope(), err))
		}
	}
	return errors.Join(errs...)
}

// RefreshAll re-fetches every mounted view.
func (rt *Runtime) RefreshAll(ctx context.Context) {
	for _, v := range rt.views {
		if !v.Mounted() {
			continue
		}
		if err := v.Refresh(ctx); err != nil {
			rt.Logger.Warn("refresh failed", slog.String("scope", string(v.Scope())), slog.String("error", err.Error()))
		}
	}
}

// Close unmounts the views and closes the cache.
func (rt *Runtime) Close() error {
	for _, v := range rt.views {
		v.Unmount()
	}
	if rt.Cache != nil {
		return rt.Cache.Close()
	}
	return nil
}
