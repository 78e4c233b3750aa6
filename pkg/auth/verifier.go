package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/metrics"
)

// TokenClaims are the claims of a verified token.
type TokenClaims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	// IssuedAt is zero when the token carries no iat claim.
	IssuedAt time.Time
	// Email and Role are informational claims set by the provider. Role is
	// the provider's role ("authenticated"), not a local RoleAssignment.
	Email string
	Role  string
}

// providerClaims is the wire shape of the provider's access token claims.
type providerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenVerifier checks signed tokens against the provider's key set.
type TokenVerifier struct {
	issuer  string
	keys    KeyResolver
	now     func() time.Time
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// VerifierOption configures a [TokenVerifier].
type VerifierOption func(*TokenVerifier)

// WithVerifierClock replaces time.Now.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) { v.now = now }
}

// WithVerifierMetrics records verification outcomes in m.
func WithVerifierMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *TokenVerifier) { v.metrics = m }
}

// NewTokenVerifier returns a verifier that trusts cfg.TrustedIssuer and
// resolves keys through keys.
func NewTokenVerifier(cfg Config, keys KeyResolver, opts ...VerifierOption) (*TokenVerifier, error) {
	if cfg.TrustedIssuer == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: trusted issuer is required")
	}
	if keys == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: key resolver is required")
	}
	v := &TokenVerifier{
		issuer: cfg.TrustedIssuer,
		keys:   keys,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify returns the token's claims when every check passes. The returned
// error carries one of:
//
//   - CodeAuthenticationMalformed: unparseable token, missing kid, alg or sub
//   - CodeAuthenticationUnknownKey: kid not published by the provider
//   - CodeAuthenticationBadSignature: signature or algorithm mismatch
//   - CodeAuthenticationInvalidIssuer: iss differs from the trusted issuer
//   - CodeAuthenticationExpired: exp missing or not after now
//
// or a retryable UNAVAIL/TIMEOUT error when the key set cannot be fetched.
// The signature is checked before any claim is looked at.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (_ *TokenClaims, err error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.TokenVerifier.Verify")
	defer func() {
		finishSpan(span, err)
		result := metrics.ResultSuccess
		if err != nil {
			result = string(sserr.GetCode(err))
		}
		v.metrics.ObserveVerification(result)
	}()

	if token == "" || len(token) > maxTokenSize {
		return nil, sserr.New(sserr.CodeAuthenticationMalformed, "auth: token is empty or too large")
	}

	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, &providerClaims{})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationMalformed, "auth: token is malformed")
	}
	kid, _ := unverified.Header["kid"].(string)
	alg, _ := unverified.Header["alg"].(string)
	if kid == "" {
		return nil, sserr.New(sserr.CodeAuthenticationMalformed, "auth: token header has no key id")
	}
	if alg == "" || alg == "none" {
		return nil, sserr.New(sserr.CodeAuthenticationMalformed, "auth: token header has no usable algorithm")
	}
	span.SetAttributes(attribute.String("auth.kid", kid), attribute.String("auth.alg", alg))

	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		return nil, err
	}

	claims := &providerClaims{}
	verifier := jwt.NewParser(
		jwt.WithValidMethods([]string{key.Algorithm}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := verifier.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key.Key, nil
	}); err != nil {
		return nil, classifyParseError(err)
	}

	now := v.now()
	if claims.Issuer != v.issuer {
		return nil, sserr.Newf(sserr.CodeAuthenticationInvalidIssuer, "auth: issuer %q is not trusted", claims.Issuer)
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return nil, sserr.New(sserr.CodeAuthenticationExpired, "auth: token has expired")
	}
	if claims.Subject == "" {
		return nil, sserr.New(sserr.CodeAuthenticationMalformed, "auth: token has no subject")
	}

	out := &TokenClaims{
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		ExpiresAt: claims.ExpiresAt.Time,
		Email:     claims.Email,
		Role:      claims.Role,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	span.SetAttributes(attribute.String("auth.subject", out.Subject))
	return out, nil
}

// classifyParseError maps golang-jwt errors from the signature pass. Claims
// validation is disabled there, so only structure and signature errors
// reach this point.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationMalformed, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationBadSignature, "auth: token signature is invalid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationBadSignature, "auth: token verification failed")
	}
}
