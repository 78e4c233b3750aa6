package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		verifier    Verifier
		method      string
		md          metadata.MD
		wantCode    codes.Code
		wantSubject string
	}{
		{
			name:        "valid token",
			verifier:    acceptToken("good"),
			method:      "/gatekeeper.v1.Admin/CreateUser",
			md:          metadata.Pairs("authorization", "Bearer good"),
			wantCode:    codes.OK,
			wantSubject: fixtures.Subject,
		},
		{
			name:     "missing metadata",
			verifier: acceptToken("good"),
			method:   "/gatekeeper.v1.Admin/CreateUser",
			wantCode: codes.Unauthenticated,
		},
		{
			name:     "invalid token",
			verifier: acceptToken("good"),
			method:   "/gatekeeper.v1.Admin/CreateUser",
			md:       metadata.Pairs("authorization", "Bearer forged"),
			wantCode: codes.Unauthenticated,
		},
		{
			name:     "key outage",
			verifier: failWith(sserr.New(sserr.CodeUnavailableDependency, "auth: JWKS endpoint returned 502")),
			method:   "/gatekeeper.v1.Admin/CreateUser",
			md:       metadata.Pairs("authorization", "Bearer good"),
			wantCode: codes.Unavailable,
		},
		{
			name:     "public method",
			verifier: failWith(sserr.New(sserr.CodeAuthenticationMalformed, "never")),
			method:   "/grpc.health.v1.Health/Check",
			wantCode: codes.OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			interceptor := UnaryServerInterceptor(NewGate(tt.verifier, nil), "/grpc.health.v1.Health/Check")

			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			var gotSubject string
			handler := func(ctx context.Context, _ any) (any, error) {
				if p, ok := PrincipalFromContext(ctx); ok {
					gotSubject = p.Subject
				}
				return "ok", nil
			}

			resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)

			if tt.wantCode == codes.OK {
				require.NoError(t, err)
				assert.Equal(t, "ok", resp)
				assert.Equal(t, tt.wantSubject, gotSubject)
				return
			}
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantCode, status.Code(err))
		})
	}
}
