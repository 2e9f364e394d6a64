package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the service name reported by the gRPC health server.
const RelayService = "chatrelay.Relay"

// GRPCHealth serves the standard grpc.health.v1.Health service.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// NewGRPCHealth listens on addr. All services start NOT_SERVING.
func NewGRPCHealth(addr string, logger *slog.Logger) (*GRPCHealth, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc health on %s: %w", addr, err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(RelayService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server: srv,
		health: hs,
		lis:    lis,
		logger: logger.With("component", "grpc_health"),
	}, nil
}

// Addr returns the bound listener address.
func (g *GRPCHealth) Addr() string {
	return g.lis.Addr().String()
}

// SetServing flips the overall and relay service status.
func (g *GRPCHealth) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(RelayService, status)
	g.logger.Info("gRPC health status changed", "status", status.String())
}

// Serve blocks until ctx is cancelled, then stops the server gracefully.
func (g *GRPCHealth) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gRPC health listening", "addr", g.Addr())
		errCh <- g.server.Serve(g.lis)
	}()

	select {
	case <-ctx.Done():
		g.health.Shutdown()
		g.server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc health: %w", err)
		}
		return nil
	}
}
