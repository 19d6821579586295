package api

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/eqplatform/internal/logging"
	"github.com/signalsfoundry/eqplatform/internal/observability"
)

const requestIDMetadataKey = "x-request-id"

// RendererService is the health service name whose status follows the
// renderer probe. The empty service name reports the same status.
const RendererService = "eqplatform.Renderer"

// DefaultProbeInterval is how often WatchRenderer re-probes.
const DefaultProbeInterval = 30 * time.Second

// RequestIDUnaryServerInterceptor ensures a request_id is present on the
// context, sourcing it from inbound metadata if provided, and attaches a
// per-request logger annotated with request_id and method.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if incoming := firstHeader(md, requestIDMetadataKey); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		return handler(ctx, req)
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health, traced
// with otelgrpc and counted by collector. Both services start NOT_SERVING
// until the first probe.
func NewGRPCServer(log logging.Logger, collector *observability.Collector) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(RendererService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// ProbeOnce probes the renderer and publishes the result on hs.
func ProbeOnce(ctx context.Context, hs *health.Server, p Prober, log logging.Logger) healthpb.HealthCheckResponse_ServingStatus {
	if log == nil {
		log = logging.Noop()
	}
	status := healthpb.HealthCheckResponse_SERVING
	if p == nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	} else if err := p.Probe(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		log.Warn(ctx, "renderer probe failed", logging.Err(err))
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(RendererService, status)
	return status
}

// WatchRenderer probes every interval until ctx is done, then marks the
// health server as shutting down.
func WatchRenderer(ctx context.Context, hs *health.Server, p Prober, interval time.Duration, log logging.Logger) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	ProbeOnce(ctx, hs, p, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			ProbeOnce(ctx, hs, p, log)
		}
	}
}
