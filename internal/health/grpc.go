package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves the standard gRPC health-checking protocol so peers can
// probe this instance with a gRPC prober.
type GRPCServer struct {
	addr   string
	server *grpc.Server
	health *grpchealth.Server
	log    *slog.Logger
}

// NewGRPCServer creates a gRPC health server on port. It starts out SERVING.
func NewGRPCServer(port int) *GRPCServer {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		addr:   fmt.Sprintf(":%d", port),
		server: srv,
		health: hs,
		log:    slog.Default().With("component", "grpc-health"),
	}
}

// SetServing flips the overall serving status. It has the shape of a network
// monitor listener.
func (g *GRPCServer) SetServing(online bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !online {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", st)
}

// Start listens and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	return g.Serve(lis)
}

// Serve serves on an existing listener.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop marks the server NOT_SERVING and stops it gracefully, falling back to
// a hard stop when ctx expires first.
func (g *GRPCServer) Stop(ctx context.Context) error {
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()
		return ctx.Err()
	}
}
