// Package api provides HTTP handlers and the main API server logic for Onboard.
//
// It exposes RESTful endpoints for managing flow definitions and for driving
// per-user onboarding sessions: answers, navigation, submission and stage
// progression. The API integrates with the flow, session, store and notify
// modules. Authentication is handled upstream; handlers trust the user id
// forwarded in the X-User-ID header.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/entrylane/onboard/internal/flow"
	"github.com/entrylane/onboard/internal/session"
	"github.com/entrylane/onboard/internal/store"
)

// DefaultAddr is the listen address used when no override is provided.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown on context cancellation.
const DefaultShutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the HTTP server.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server holds the API dependencies and implements the HTTP handlers.
type Server struct {
	sessions *session.Manager
	defs     *flow.DefinitionStore
	orch     *flow.StageOrchestrator
	st       store.Store
	validate *validator.Validate
	addr     string
}

// NewServer creates an API server over the given collaborators.
func NewServer(st store.Store, defs *flow.DefinitionStore, orch *flow.StageOrchestrator, sessions *session.Manager, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating API Server", "addr", cfg.Addr)
	return &Server{
		sessions: sessions,
		defs:     defs,
		orch:     orch,
		st:       st,
		validate: validator.New(),
		addr:     cfg.Addr,
	}
}

// routes registers all endpoints on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/flows", s.flowsHandler)
	mux.HandleFunc("/flows/", s.flowHandler)
	mux.HandleFunc("/session", s.startSessionHandler)
	mux.HandleFunc("/session/", s.sessionHandler)
	mux.HandleFunc("/stages", s.stagesHandler)
	mux.HandleFunc("/stages/advance", s.advanceStageHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Onboard API running", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Onboard API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	}
}
