package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

// UnaryLoggingInterceptor logs unary RPC calls with timing and errors
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, "unary RPC", ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamLoggingInterceptor logs streaming RPC calls with timing and errors
func StreamLoggingInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("stream RPC started",
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID(ss.Context())),
			zap.Bool("is_client_stream", info.IsClientStream),
			zap.Bool("is_server_stream", info.IsServerStream),
		)

		err := handler(srv, ss)
		logCall(logger, "stream RPC", ss.Context(), info.FullMethod, start, err)
		return err
	}
}

func logCall(logger *zap.Logger, msg string, ctx context.Context, method string, start time.Time, err error) {
	code := status.Code(err)
	if ce := logger.Check(levelFor(code), msg); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("request_id", requestID(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", code.String()),
			zap.Error(err),
		)
	}
}

// levelFor keeps caller mistakes out of the error log.
func levelFor(code codes.Code) zapcore.Level {
	switch code {
	case codes.OK:
		return zapcore.InfoLevel
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated,
		codes.FailedPrecondition, codes.Canceled, codes.ResourceExhausted:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func requestID(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if ids := md.Get(requestIDHeader); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
