// Package api serves the daemon's admin HTTP surface: health, metrics, pool
// and cache entry inspection, and local job submission.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/eventstore"
	"git.home.luguber.info/inful/repocache/internal/janitor"
	"git.home.luguber.info/inful/repocache/internal/pool"
	"git.home.luguber.info/inful/repocache/internal/queue"
)

// Deps are the components the admin API reads from. Only Store and Pools are
// required.
type Deps struct {
	Store      *cachestate.Store
	Pools      *pool.Registry
	Queue      *queue.CloneQueue
	Journal    *eventstore.Journal
	Projection *eventstore.EntryProjection
	Janitor    *janitor.Janitor
	Metrics    http.Handler
}

// Server represents the admin API server.
type Server struct {
	Addr    string
	router  *chi.Mux
	server  *http.Server
	deps    Deps
	started time.Time
}

// NewServer creates a new admin API server.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		Addr:    addr,
		router:  chi.NewRouter(),
		deps:    deps,
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	s.router.Get("/pools", s.handlePools)
	s.router.Get("/entries/{fingerprint}", s.handleGetEntry)
	s.router.Get("/entries", s.handleRecentEntries)

	s.router.Post("/jobs", s.handleCreateJob)
	s.router.Get("/jobs", s.handleListJobs)
	s.router.Get("/jobs/{id}", s.handleGetJob)

	s.router.Post("/sweep", s.handleSweep)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listener and serves in the background. Bind errors are
// returned immediately. Addr is updated to the bound address.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("admin listener %s: %w", s.Addr, err)
	}
	s.Addr = ln.Addr().String()
	slog.Info("Admin API listening", slog.String("addr", s.Addr))
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Admin API stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Error writes an error response.
func (s *Server) Error(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, Response{Success: false, Error: message})
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
