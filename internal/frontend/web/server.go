package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/scrabble/internal/config"
	"github.com/cory-johannsen/scrabble/internal/frontend/handlers"
)

// shutdownTimeout bounds graceful shutdown of in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

// Server runs the HTTP listener.
type Server struct {
	cfg    config.HTTPConfig
	logger *zap.Logger
	http   *http.Server
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a Server for the router built from coord and adapter.
//
// Precondition: coord, adapter and logger must be non-nil.
func NewServer(cfg config.HTTPConfig, coord handlers.Coordinator, adapter *handlers.Adapter, logger *zap.Logger) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger,
		cancel: cancel,
		http: &http.Server{
			Handler:           NewRouter(base, cfg, coord, adapter, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe serves until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listener error.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop closes every websocket and drains in-flight requests.
func (s *Server) Stop() {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	s.logger.Info("http server stopped")
}

// Addr returns the listening address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
