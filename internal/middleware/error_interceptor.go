package middleware

import (
	"context"

	"github.com/code19m/errx"
	"google.golang.org/grpc"
)

// UnaryErrorInterceptor turns errx errors into gRPC statuses that keep
// their code and details, so clients can restore them with
// errx.FromGRPCError.
func UnaryErrorInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			err = errx.ToGRPCError(err, errx.WithTracePrefix(serviceName))
		}
		return resp, err
	}
}

func StreamErrorInterceptor(serviceName string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		if err != nil {
			err = errx.ToGRPCError(err, errx.WithTracePrefix(serviceName))
		}
		return err
	}
}

// UnaryErrorUnwrap is the client half of UnaryErrorInterceptor.
func UnaryErrorUnwrap() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		if ok, e := errx.FromGRPCError(err); ok {
			return e
		}
		return err
	}
}
