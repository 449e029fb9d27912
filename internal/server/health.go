package server

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/cory-johannsen/scrabble/internal/config"
)

// HealthServer exposes the standard gRPC health service. The empty service
// name reports overall process health; components register their own names
// with Track.
type HealthServer struct {
	cfg    config.HealthConfig
	logger *zap.Logger
	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthServer creates a HealthServer with reflection enabled.
//
// Precondition: logger must be non-nil.
func NewHealthServer(cfg config.HealthConfig, logger *zap.Logger) *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{cfg: cfg, logger: logger, grpc: gs, health: hs}
}

// Track reports service as SERVING until done is closed, then NOT_SERVING.
func (h *HealthServer) Track(service string, done <-chan struct{}) {
	h.health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	go func() {
		<-done
		h.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
		h.logger.Info("service no longer serving", zap.String("service", service))
	}()
}

// Start listens and serves health checks until Stop.
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", h.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Addr(), err)
	}
	h.mu.Lock()
	h.listener = lis
	h.mu.Unlock()

	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.logger.Info("health server listening", zap.String("addr", lis.Addr().String()))
	return h.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// Addr returns the listening address, or "" before Start.
func (h *HealthServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
