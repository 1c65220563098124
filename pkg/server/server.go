// Package server provides the HTTP API for the spend monitor.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"halcyon-hq/spendwatch/pkg/alerts"
	"halcyon-hq/spendwatch/pkg/config"
	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/rollup"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
)

// Server is the HTTP API server for the spend monitor. It exposes read
// endpoints over the rollup engine and raw page archive, plus admin
// endpoints for recomputation and alert testing.
type Server struct {
	store        *config.Store
	actor        *rollup.Actor
	raw          rawstore.Store
	backend      storage.Backend
	dispatcher   *alerts.Dispatcher
	metrics      http.Handler
	logger       *slog.Logger
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Options carries the dependencies for NewServer.
type Options struct {
	// Config is the hot-reloadable configuration store.
	Config *config.Store

	// Actor is the rollup engine the read and admin endpoints talk to.
	Actor *rollup.Actor

	// Raw is the raw page archive.
	Raw rawstore.Store

	// Backend serves recent ingestion run history for /status.
	Backend storage.Backend

	// Dispatcher sends test alerts. Optional; /test/alert returns 503
	// when nil.
	Dispatcher *alerts.Dispatcher

	// Metrics is the handler mounted at /metrics. Optional.
	Metrics http.Handler

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewServer creates a new API server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if opts.Actor == nil {
		return nil, fmt.Errorf("rollup actor is required")
	}
	if opts.Raw == nil {
		return nil, fmt.Errorf("raw page store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        opts.Config,
		actor:        opts.Actor,
		raw:          opts.Raw,
		backend:      opts.Backend,
		dispatcher:   opts.Dispatcher,
		metrics:      opts.Metrics,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	cfg := s.store.Get().Server

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "address", cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop requests shutdown of a blocked Start.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	timeout := s.store.Get().Server.ShutdownTimeout
	s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.logger.Info("api server stopped")
	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /spend", s.handleSpend)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /providers/{name}/raw", s.handleRawPages)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /admin/recompute", s.requireAdmin(s.handleRecompute))
	mux.HandleFunc("POST /test/alert", s.requireAdmin(s.handleTestAlert))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
