package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health service on its own listener.
type HealthServer struct {
	listener net.Listener
	server   *gogrpc.Server
	health   *health.Server
}

// NewHealthServer listens on addr and registers a health service that starts
// out NOT_SERVING.
func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{listener: listener, server: server, health: healthServer}, nil
}

// Addr returns the bound listener address.
func (s *HealthServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetServing flips the overall health status.
func (s *HealthServer) SetServing(serving bool) {
	if s == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Serve blocks until ctx is canceled, then marks the service NOT_SERVING and
// stops gracefully.
func (s *HealthServer) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("health server is not configured")
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC health: %w", err)
	}
}

// WaitForHealth polls the health service until it reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logger *slog.Logger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	wait := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			logger.Debug("gRPC health is SERVING", "target", conn.Target())
			return nil
		}
		if err != nil {
			logger.Debug("waiting for gRPC health", "target", conn.Target(), "error", err)
		} else {
			logger.Debug("waiting for gRPC health", "target", conn.Target(), "status", response.GetStatus().String())
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, time.Second)
	}
}
