package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Verifier verifies a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*TokenClaims, error)
}

// Gate turns an Authorization header into a [Principal]. It holds no
// per-request state.
type Gate struct {
	verifier Verifier
	logger   *slog.Logger
}

// NewGate returns a gate backed by verifier. A nil logger means
// slog.Default().
func NewGate(verifier Verifier, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{verifier: verifier, logger: logger}
}

// Authenticate verifies the bearer credential in authHeader.
//
// Every verification failure is returned as the same CodeAuthentication
// error; which check failed is only logged. A key set outage is returned
// as CodeUnavailable so callers can retry.
func (g *Gate) Authenticate(ctx context.Context, authHeader string) (Principal, error) {
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return Principal{}, sserr.Unauthenticated("unauthenticated")
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if sserr.IsRetryable(err) {
			g.logger.ErrorContext(ctx, "auth: signing keys unavailable", "error", err)
			return Principal{}, sserr.Unavailable("authentication temporarily unavailable")
		}
		g.logger.WarnContext(ctx, "auth: token rejected",
			"code", sserr.GetCode(err),
			"error", err,
		)
		return Principal{}, sserr.Unauthenticated("unauthenticated")
	}
	return Principal{Subject: claims.Subject, Claims: claims}, nil
}

// MiddlewareOption configures [HTTPMiddleware].
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	public map[string]bool
}

// WithPublicPaths replaces the allow-list of paths served without a token.
// The default list is "/health".
func WithPublicPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.public = make(map[string]bool, len(paths))
		for _, p := range paths {
			c.public[p] = true
		}
	}
}

// HTTPMiddleware authenticates every request whose path is not on the
// public allow-list and stores the [Principal] in the request context.
// Rejections are written as {"success":false,"message":...} with status 401,
// or 503 when the signing keys cannot be fetched.
func HTTPMiddleware(gate *Gate, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{public: map[string]bool{"/health": true}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := gate.Authenticate(r.Context(), r.Header.Get(HeaderAuthorization))
			if err != nil {
				status, message := http.StatusUnauthorized, "Unauthorized"
				if sserr.IsRetryable(err) {
					status, message = http.StatusServiceUnavailable, "Authentication temporarily unavailable"
				} else {
					w.Header().Set("WWW-Authenticate", `Bearer realm="gatekeeper"`)
				}
				writeRejection(w, status, message)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func writeRejection(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Success: false, Message: message})
}
