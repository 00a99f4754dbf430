package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	tablehealth "github.com/devrev/actorstate/internal/health"
)

// GRPCServer hosts the standard gRPC health-checking and reflection
// services over the table's process. It does not expose the table
// itself: the table's boundary is the in-process API surface consumed
// directly by an embedder in the same binary, not a wire protocol.
type GRPCServer struct {
	server       *grpc.Server
	healthServer *health.Server
	listenAddr   string
	logger       *zap.Logger
}

// GRPCServerConfig configures a GRPCServer.
type GRPCServerConfig struct {
	Host string
	Port int
}

// NewGRPCServer creates a GRPCServer. Its serving status starts SERVING;
// call WatchReadiness to keep it in sync with a health checker.
func NewGRPCServer(cfg GRPCServerConfig, checker *tablehealth.Checker, logger *zap.Logger) *GRPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	s := &GRPCServer{
		server:       grpcSrv,
		healthServer: healthSrv,
		listenAddr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		logger:       logger,
	}

	s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if !checker.IsReady() {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return s
}

// WatchReadiness polls checker's readiness on interval and mirrors it into
// the gRPC health service's overall serving status, until ctx is done.
// Run this as its own goroutine, alongside the checker's own Run loop.
func (s *GRPCServer) WatchReadiness(ctx context.Context, checker *tablehealth.Checker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status := healthpb.HealthCheckResponse_SERVING
		if !checker.IsReady() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.healthServer.SetServingStatus("", status)
	}
}

// Serve starts accepting connections. Blocks until the listener closes.
func (s *GRPCServer) Serve() error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.logger.Info("starting grpc server", zap.String("addr", s.listenAddr))
	return s.server.Serve(lis)
}

// SetServingStatus updates the overall health status reported by the
// standard gRPC health service.
func (s *GRPCServer) SetServingStatus(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// GracefulStop drains in-flight RPCs then stops.
func (s *GRPCServer) GracefulStop() {
	s.logger.Info("stopping grpc server")
	s.server.GracefulStop()
}
