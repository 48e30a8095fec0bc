package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// InitTracerProvider initializes OpenTelemetry tracing with a stdout
// exporter and installs it as the global provider. Pass io.Discard to keep
// spans in-process only.
func InitTracerProvider(ctx context.Context, w io.Writer, logger *zap.Logger) (*trace.TracerProvider, error) {
	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if w != nil {
		opts = append(opts, stdouttrace.WithWriter(w))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		logger.Error("failed to create trace exporter", zap.Error(err))
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return tp, nil
}

// ShutdownTracerProvider gracefully shuts down the tracer provider
func ShutdownTracerProvider(ctx context.Context, tp *trace.TracerProvider, logger *zap.Logger) {
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer provider", zap.Error(err))
	}
}

// GRPCStatsHandler returns the otelgrpc server handler bound to tp.
func GRPCStatsHandler(tp *trace.TracerProvider) grpc.ServerOption {
	return grpc.StatsHandler(otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(tp)))
}
