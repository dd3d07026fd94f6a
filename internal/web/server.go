// Package web serves a read-only HTTP API over probe status.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jandubois/rsvctl/internal/probe"
	"github.com/jandubois/rsvctl/internal/registry"
	"github.com/jandubois/rsvctl/internal/status"
)

// Source enumerates configured probes.
type Source interface {
	ConfiguredProbes(ctx context.Context, opts registry.Options) ([]*probe.Probe, error)
	ProbeByID(ctx context.Context, id string) (*probe.Probe, error)
}

// Options configures a Server.
type Options struct {
	Addr string
	// AuthToken, when set, is required as a bearer token on API routes.
	AuthToken string
}

// Server is the status API server.
type Server struct {
	source    Source
	reporter  *status.Reporter
	authToken string
	server    *http.Server
}

// NewServer creates a new status server.
func NewServer(source Source, reporter *status.Reporter, opts Options) *Server {
	s := &Server{
		source:    source,
		reporter:  reporter,
		authToken: opts.AuthToken,
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.Handle("GET /api/probes", s.requireAuth(http.HandlerFunc(s.handleListProbes)))
	mux.Handle("GET /api/probes/{id}", s.requireAuth(http.HandlerFunc(s.handleGetProbe)))

	return mux
}
