// Package server provides the HTTP API for kinji.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/config"
	"github.com/hyperjump/kinji/internal/resource"
	"github.com/hyperjump/kinji/internal/session"
)

// RequestTimeout bounds every API request. Snapshots replaced by a reload must outlive it.
const RequestTimeout = 60 * time.Second

// Server is the HTTP server for the kinji API.
type Server struct {
	registry *resource.Registry
	config   *config.Config
	sessions *session.Manager
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server. Snapshots are fetched from registry for cfg on every request,
// so an explicit reload is picked up by the next request.
func NewServer(registry *resource.Registry, cfg *config.Config, sessions *session.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = session.NewManager(logger)
	}
	return &Server{
		registry: registry,
		config:   cfg,
		sessions: sessions,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/similar/{id}", s.handleSimilar)
		r.Get("/records", s.handleListRecords)
		r.Get("/records/{id}", s.handleGetRecord)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/sessions/{id}/events", s.handleSessionEvent)
		r.Post("/sessions/{id}/view", s.handleSessionView)

		r.Post("/admin/reload", s.handleReload)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Reload replaces the loaded snapshot and revalidates every session against it.
// The artifact watcher and the admin endpoint both call it.
func (s *Server) Reload(ctx context.Context) (*resource.Snapshot, error) {
	snap, err := s.registry.Reload(ctx, s.config)
	if err != nil {
		return nil, err
	}
	s.sessions.RevalidateAll(snap.Store.Resolver().Contains)
	return snap, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
