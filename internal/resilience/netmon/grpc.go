package netmon

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/vietddude/resilience/internal/core/domain"
)

// GRPCProber checks reachability with the standard gRPC health-checking
// protocol. SERVING means reachable.
type GRPCProber struct {
	target  string
	service string
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
}

// NewGRPCProber creates a prober for endpoint. The connection is established
// lazily on the first probe. service may be empty to check the whole server.
func NewGRPCProber(endpoint, service string) (*GRPCProber, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return &GRPCProber{
		target:  target,
		service: service,
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
	}, nil
}

// Name implements Prober.
func (p *GRPCProber) Name() string {
	return "grpc"
}

// Probe implements Prober.
func (p *GRPCProber) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return fromGRPC(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return domain.NewAPIError(
			http.StatusServiceUnavailable,
			"health status "+resp.GetStatus().String(),
		)
	}
	return nil
}

// Close releases the connection.
func (p *GRPCProber) Close() error {
	return p.conn.Close()
}

// fromGRPC maps a gRPC status error onto the failure variants.
func fromGRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return domain.NewNetworkError(err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return domain.NewNetworkError(err)
	case codes.NotFound:
		return domain.NewAPIError(http.StatusNotFound, st.Message())
	case codes.Unimplemented:
		return domain.NewAPIError(http.StatusNotImplemented, st.Message())
	case codes.PermissionDenied:
		return domain.NewAPIError(http.StatusForbidden, st.Message())
	case codes.Unauthenticated:
		return domain.NewAPIError(http.StatusUnauthorized, st.Message())
	case codes.ResourceExhausted:
		return domain.NewAPIError(http.StatusTooManyRequests, st.Message())
	default:
		return domain.NewAPIError(http.StatusInternalServerError, st.Message())
	}
}
