// Package web serves the daemon status endpoints: liveness plus a read-only
// view of recent sweep runs and archived accounts.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Server struct {
	addr   string
	source RunSource
	logger *zap.Logger
	router chi.Router
}

// NewServer builds the status server. source may be nil when no archive
// store is configured; the data endpoints then answer 503.
func NewServer(addr string, source RunSource, logger *zap.Logger) *Server {
	s := &Server{
		addr:   addr,
		source: source,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/archive", s.handleArchive)
	s.router = r

	return s
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.addr))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
