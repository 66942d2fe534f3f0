package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "grpc_panics_recovered_total",
		Help: "Panics recovered in gRPC unary handlers.",
	},
	[]string{"method"},
)

// GRPCRecovery converts a handler panic into codes.Internal and tags the
// context with the grpc entry point.
func GRPCRecovery(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		ctx = contextx.WithEntryPoint(ctx, "grpc")
		defer func() {
			if rec := recover(); rec != nil {
				grpcPanicsTotal.WithLabelValues(info.FullMethod).Inc()
				logger.ErrorContext(ctx, "gRPC panic recovered",
					"panic", rec,
					"method", info.FullMethod,
					"stack", string(debug.Stack()),
				)
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
