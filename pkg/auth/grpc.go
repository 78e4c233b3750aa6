package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// UnaryServerInterceptor authenticates unary gRPC calls with gate. Methods
// listed in publicMethods (full names, e.g. "/grpc.health.v1.Health/Check")
// skip authentication.
func UnaryServerInterceptor(gate *Gate, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if public[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authenticateGRPC(ctx, gate)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func authenticateGRPC(ctx context.Context, gate *Gate) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(HeaderAuthorization); len(values) > 0 {
			header = values[0]
		}
	}

	principal, err := gate.Authenticate(ctx, header)
	if err != nil {
		if sserr.IsRetryable(err) {
			return ctx, status.Error(codes.Unavailable, "authentication temporarily unavailable")
		}
		return ctx, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return ContextWithPrincipal(ctx, principal), nil
}
