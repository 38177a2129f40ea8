// Package gateway serves the public API: artist CRUD, run ingest and the
// breaker-guarded search path.
package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syntrixbase/inkwell/internal/gateway/rest"
)

// Server is a route registrar for the API layer.
// It registers REST and metrics routes to a given ServeMux.
type Server struct {
	rest    *rest.Handler
	metrics http.Handler
}

// ServerOption is a function that configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	gatherer prometheus.Gatherer
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(c *serverConfig) {
		c.gatherer = g
	}
}

// NewServer creates a new API Server (route registrar).
func NewServer(restHandler *rest.Handler, opts ...ServerOption) *Server {
	cfg := &serverConfig{gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{
		rest:    restHandler,
		metrics: promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}),
	}
}

// RegisterRoutes registers all API routes to the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.rest.RegisterRoutes(mux)
	mux.Handle("GET /metrics", s.metrics)
}
