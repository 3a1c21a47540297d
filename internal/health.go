package internal

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"

	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/clog"
)

// HealthService is the service name the gRPC health check answers for,
// besides the empty name for the whole server.
const HealthService = "riggerhire.v1.Engine"

// HealthChecker reports the server healthy while the task store answers.
type HealthChecker struct {
	ping func(ctx context.Context) error
}

func NewHealthChecker(ping func(ctx context.Context) error) *HealthChecker {
	return &HealthChecker{ping: ping}
}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := hc.ping(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (hc *HealthChecker) Check(ctx context.Context, req *grpchealth.CheckRequest) (*grpchealth.CheckResponse, error) {
	if req.Service != "" && req.Service != HealthService {
		return nil, cerr.NewError(cerr.NotFound, "unknown service "+req.Service, nil)
	}
	if err := hc.ping(ctx); err != nil {
		slog.WarnContext(ctx, "health check failed", "error", err)
		return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
	}
	return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
}

func (hc *HealthChecker) grpcHandler() (string, http.Handler) {
	return grpchealth.NewHandler(hc, connect.WithInterceptors(
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckUnaryFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	))
}
