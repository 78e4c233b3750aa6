package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Principal is the verified caller of one request. Only the gate creates
// it and it is never persisted.
type Principal struct {
	Subject string
	Claims  *TokenClaims
}

type contextKey int

const principalKey contextKey = iota

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the gate.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// MustPrincipalFromContext is PrincipalFromContext for handlers mounted
// behind the gate. It panics when no principal is present.
func MustPrincipalFromContext(ctx context.Context) Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("auth: no principal in context; ensure the authentication gate is configured")
	}
	return p
}

// TraceIDFromContext returns the active trace id, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
