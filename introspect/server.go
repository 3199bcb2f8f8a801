// Package introspect serves a read-mostly HTTP view of a module registry
// for debugging tools: module info, initialization order, Prometheus
// metrics and, when enabled, on-demand module reloads.
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/modloader"
)

// Server is the debug HTTP server.
type Server struct {
	registry    *modloader.Registry
	logger      modloader.Logger
	gatherer    prometheus.Gatherer
	allowReload bool
	router      *chi.Mux
	server      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and server errors.
func WithLogger(logger modloader.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves metrics from g at /metrics. Without it the route is absent.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithReload enables POST /modules/{name}/reload.
func WithReload(enabled bool) Option {
	return func(s *Server) { s.allowReload = enabled }
}

// NewServer creates a new Server for r.
func NewServer(r *modloader.Registry, opts ...Option) *Server {
	s := &Server{
		registry: r,
		logger:   modloader.NopLogger(),
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/modules", s.handleListModules)
	s.router.Get("/modules/{name}", s.handleGetModule)
	s.router.Get("/order", s.handleOrder)
	if s.allowReload {
		s.router.Post("/modules/{name}/reload", s.handleReload)
	}
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr and serves until Shutdown. It returns once the
// listener is bound; serve errors are logged.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Debug server stopped", "error", err)
		}
	}()
	s.logger.Info("Debug server listening", "address", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Info())
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, ok := s.registry.Info().Module(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("module not found: %s", name))
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

type orderResponse struct {
	Order []string `json:"order"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.registry.Order()
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, orderResponse{Order: order})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.registry.Has(name) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("module not found: %s", name))
		return
	}
	if _, err := s.registry.Reload(r.Context(), name); err != nil {
		s.logger.Error("Reload failed", "module", name, "error", err, "request", middleware.GetReqID(r.Context()))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	info, _ := s.registry.Info().Module(name)
	s.writeJSON(w, http.StatusOK, info)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}
