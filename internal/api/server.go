package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranckSowax/botpharma/internal/automation"
	"github.com/FranckSowax/botpharma/internal/pipeline"
	"github.com/FranckSowax/botpharma/internal/store"
)

// DefaultAddr is the default listen address of the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP endpoints to the pipeline and the automation
// orchestrator.
type Server struct {
	addr         string
	store        store.Store
	handler      *pipeline.Handler
	orchestrator *automation.Orchestrator
	httpServer   *http.Server
}

// NewServer creates an API server.
func NewServer(st store.Store, handler *pipeline.Handler, orch *automation.Orchestrator, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{addr: cfg.Addr, store: st, handler: handler, orchestrator: orch}
}

// Routes returns the HTTP handler serving every endpoint, exposed separately
// so tests can drive it through httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/webhook/whatsapp", s.webhookHandler)
	mux.HandleFunc("/api/automation/run", s.automationRunHandler)
	mux.HandleFunc("/api/automation/stats", s.automationStatsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		slog.Info("Server.Start: API server stopped")
		return nil
	}
}
