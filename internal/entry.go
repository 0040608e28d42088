// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/atelier/internal/api"
	"github.com/starford/atelier/internal/mcpserver"
	"github.com/starford/atelier/internal/sse"
)

// readyHandler answers 503 until every view holds a collection, either
// fetched or restored from the snapshot cache.
func readyHandler(rt *Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for _, v := range rt.Views() {
			if !v.Loaded() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, `{"status":"unavailable","scope":%q}`, v.Scope())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Run serves the HTTP surface with the given options until a shutdown
// signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	rt, err := Open(ctx, append(opts, WithNotices(broker))...)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	logger := rt.Logger
	slog.SetDefault(logger)

	for _, v := range rt.Views() {
		detach := broker.Attach(string(v.Scope()), v.Store(), v.Lightbox())
		defer detach()
	}
	if err := rt.Mount(ctx); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}

	// Build API service and router.
	svc := api.NewService(rt.Views()...)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, rt.Metrics.Handler(), cfg.App.HTTP.UploadDir)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(rt))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the bearer token when its file changes and refetch with it.
	if rt.fileToken != nil {
		g.Go(func() error {
			return rt.fileToken.Watch(gCtx, logger, func() { rt.RefreshAll(gCtx) })
		})
	}

	if every := cfg.Gallery.RefreshInterval; every > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					rt.RefreshAll(gCtx)
				}
			}
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		for _, v := range rt.Views() {
			if err := v.Drain(shutdownCtx); err != nil {
				logger.Warn("pending mutations abandoned", slog.String("scope", string(v.Scope())), slog.String("error", err.Error()))
			}
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so background loops stop with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Mount(ctx); err != nil {
		rt.Logger.Warn("initial load failed", slog.String("error", err.Error()))
	}
	rt.Logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.Views()...).ServeStdio()
}
