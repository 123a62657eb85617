package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC health service name reporting ledger integrity.
const ServiceName = "ayutrack.Ledger"

// NewGRPCServer returns a gRPC server exposing the standard health service,
// with c publishing to it, and reflection for grpcurl.
func NewGRPCServer(c *Checker, logger *zap.Logger) *grpc.Server {
	if logger == nil {
		logger = c.logger
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	healthSvc := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, healthSvc)
	c.SetStatusSetter(healthSvc)
	reflection.Register(srv)
	return srv
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
