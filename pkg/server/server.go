// Package server provides a public API for embedding the scene chipper HTTP surface:
// run history, collection definitions, persisted chips and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/scene-chipper/internal/api"
	"github.com/robert-malhotra/scene-chipper/internal/audit"
	"github.com/robert-malhotra/scene-chipper/internal/config"
	"github.com/robert-malhotra/scene-chipper/internal/store"
)

// Options configures the server.
type Options struct {
	// CollectionsDir is the path to collection definition files.
	// Default: "" (uses built-in defaults)
	CollectionsDir string

	// AuditDBPath is the SQLite run history database.
	// Default: "" (run endpoints are disabled)
	AuditDBPath string

	// OutputDir is the chip store directory.
	// Default: "" (chip endpoint is disabled)
	OutputDir string

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is the chipper HTTP API, embeddable in another application.
type Server struct {
	router chi.Router
	audit  *audit.Log
	logger *slog.Logger
}

// New creates a server with the given options.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	collections := config.DefaultCollections()
	if opts.CollectionsDir != "" {
		loaded, err := config.LoadCollections(opts.CollectionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load collections: %w", err)
		}
		collections = loaded
	}

	s := &Server{logger: opts.Logger}
	handlers := api.NewHandlers(collections, opts.Logger)

	if opts.AuditDBPath != "" {
		history, err := audit.Open(opts.AuditDBPath)
		if err != nil {
			return nil, err
		}
		s.audit = history.WithLogger(opts.Logger)
		handlers.WithRuns(s.audit)
		opts.Logger.Info("run history enabled", slog.String("db", opts.AuditDBPath))
	}

	if opts.OutputDir != "" {
		fs, err := store.NewFileStore(opts.OutputDir)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		handlers.WithStore(fs.WithLogger(opts.Logger))
	}

	if opts.Metrics != nil {
		handlers.WithMetrics(opts.Metrics)
	}

	s.router = api.NewRouter(handlers, opts.Logger)
	return s, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close releases the run history database.
func (s *Server) Close() error {
	if s.audit != nil {
		return s.audit.Close()
	}
	return nil
}

// ListenConfig holds the listener settings for ListenAndServe.
type ListenConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, lc ListenConfig) error {
	srv := &http.Server{
		Addr:         lc.Addr,
		Handler:      s.router,
		ReadTimeout:  lc.ReadTimeout,
		WriteTimeout: lc.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), lc.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server", slog.Duration("timeout", lc.ShutdownTimeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
