// Package server is the HTTP front of the process: one mux behind the
// standard middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/syntrixbase/inkwell/internal/server/ratelimit"
)

var errAlreadyStarted = errors.New("server already started")

// Service is the HTTP front of the process.
type Service interface {
	// Start listens and serves until ctx is canceled or serving fails.
	Start(ctx context.Context) error
	// Stop drains active connections or gives up when ctx expires.
	Stop(ctx context.Context) error
	// RegisterHTTPHandler must be called before Start.
	RegisterHTTPHandler(pattern string, handler http.Handler)
	HTTPMux() *http.ServeMux
	// Handler is the mux behind the middleware chain.
	Handler() http.Handler
}

type serverImpl struct {
	cfg         Config
	logger      *slog.Logger
	httpMux     *http.ServeMux
	rateLimiter ratelimit.Limiter

	mu         sync.Mutex
	started    bool
	listener   net.Listener
	httpServer *http.Server
}

func New(cfg Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &serverImpl{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		httpMux: http.NewServeMux(),
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}
	return s
}

// listen binds the port up front so bind errors surface from Start.
func (s *serverImpl) listen() (*http.Server, net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, nil, errAlreadyStarted
	}
	s.started = true

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.HTTPPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("http listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.HTTPReadTimeout,
		WriteTimeout: s.cfg.HTTPWriteTimeout,
		IdleTimeout:  s.cfg.HTTPIdleTimeout,
	}
	return s.httpServer, ln, nil
}

func (s *serverImpl) Start(ctx context.Context) error {
	srv, ln, err := s.listen()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (s *serverImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		s.logger.Info("Stopping HTTP server")
		if e := s.httpServer.Shutdown(ctx); e != nil {
			err = fmt.Errorf("http shutdown error: %w", e)
		}
	}
	if l, ok := s.rateLimiter.(ratelimit.Stoppable); ok {
		l.Stop()
	}
	return err
}

// Addr is the bound address once Start has listened, else "".
func (s *serverImpl) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *serverImpl) RegisterHTTPHandler(pattern string, handler http.Handler) {
	s.httpMux.Handle(pattern, handler)
}

func (s *serverImpl) HTTPMux() *http.ServeMux { return s.httpMux }

func (s *serverImpl) Handler() http.Handler { return s.wrapMiddleware(s.httpMux) }
