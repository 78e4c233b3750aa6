package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/metrics"
)

const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"

// Key set sources, used as span attributes and metric labels.
const (
	sourceProvider = "provider"
	sourceMirror   = "mirror"
)

// HTTPClient is the subset of *http.Client used for outbound calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SigningKey is one public verification key from the provider's key set.
// Values are never modified after parsing.
type SigningKey struct {
	ID        string
	Key       crypto.PublicKey
	Algorithm string
}

// KeyResolver looks up a signing key by key id.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (SigningKey, error)
}

// KeySetMirror is an optional shared copy of the raw JWKS document, used by
// replicas to avoid each fetching from the provider. Load returns nil, nil
// when nothing is stored. Clear drops a document the cache could not use.
type KeySetMirror interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, document []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// keySet is an immutable snapshot swapped in as a whole.
type keySet struct {
	keys      map[string]SigningKey
	fetchedAt time.Time
	source    string
}

// refreshAttempt records the most recent refresh, successful or not.
type refreshAttempt struct {
	at  time.Time
	err error
}

// KeySetCache resolves signing keys from the provider's JWKS endpoint.
//
// Reads are lock-free against an atomically swapped snapshot. A refresh
// happens on the first lookup, on TTL expiry, and when a key id is missing.
// At most one refresh is attempted per MinRefreshInterval, whether the last
// attempt succeeded or failed. Concurrent refreshes are collapsed into one
// fetch. A failed refresh keeps the previous snapshot.
type KeySetCache struct {
	cfg     Config
	client  HTTPClient
	mirror  KeySetMirror
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	current atomic.Pointer[keySet]
	attempt atomic.Pointer[refreshAttempt]
	group   singleflight.Group
}

// CacheOption configures a [KeySetCache].
type CacheOption func(*KeySetCache)

// WithHTTPClient sets the client used to fetch the key set.
func WithHTTPClient(client HTTPClient) CacheOption {
	return func(c *KeySetCache) { c.client = client }
}

// WithMirror enables a shared key set mirror.
func WithMirror(mirror KeySetMirror) CacheOption {
	return func(c *KeySetCache) { c.mirror = mirror }
}

// WithCacheLogger sets the logger. The default is slog.Default().
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *KeySetCache) { c.logger = logger }
}

// WithCacheMetrics records refreshes in m.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *KeySetCache) { c.metrics = m }
}

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *KeySetCache) { c.now = now }
}

// NewKeySetCache validates cfg and returns an empty cache. No network call
// is made until the first Resolve or Refresh.
func NewKeySetCache(cfg Config, opts ...CacheOption) (*KeySetCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &KeySetCache{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.FetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve returns the key registered under kid. It returns
// CodeAuthenticationUnknownKey when the provider does not publish kid, and
// a retryable UNAVAIL or TIMEOUT error when the key set cannot be fetched
// and no cached answer exists.
//
// Within MinRefreshInterval of the last refresh attempt no new fetch is
// made: a cached key is served even if stale, and a missing kid fails
// immediately with the last attempt's error, or UnknownSigningKey when that
// attempt succeeded.
func (c *KeySetCache) Resolve(ctx context.Context, kid string) (SigningKey, error) {
	now := c.now()
	set := c.current.Load()

	var (
		cached SigningKey
		found  bool
	)
	if set != nil {
		cached, found = set.keys[kid]
		if found && now.Sub(set.fetchedAt) < c.cfg.CacheTTL {
			return cached, nil
		}
	}

	if last := c.attempt.Load(); last != nil && now.Sub(last.at) < c.cfg.MinRefreshInterval {
		switch {
		case found:
			return cached, nil
		case last.err != nil:
			return SigningKey{}, last.err
		default:
			return SigningKey{}, unknownKey(kid)
		}
	}

	refreshed, err := c.refresh(ctx, kid)
	if err != nil {
		if found {
			c.logger.WarnContext(ctx, "auth: key set refresh failed, serving cached key",
				"kid", kid,
				"error", err,
			)
			return cached, nil
		}
		return SigningKey{}, err
	}
	return lookup(refreshed, kid)
}

// Refresh fetches the key set from the provider, bypassing the mirror and
// the refresh interval. It is used to warm the cache at startup.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, "")
	return err
}

// Len returns the number of keys in the current snapshot.
func (c *KeySetCache) Len() int {
	if set := c.current.Load(); set != nil {
		return len(set.keys)
	}
	return 0
}

func lookup(set *keySet, kid string) (SigningKey, error) {
	if key, ok := set.keys[kid]; ok {
		return key, nil
	}
	return SigningKey{}, unknownKey(kid)
}

func unknownKey(kid string) error {
	return sserr.Newf(sserr.CodeAuthenticationUnknownKey, "auth: no signing key with id %q", kid)
}

// refresh consults the mirror first when one is configured and a kid is
// wanted. A mirror copy that lacks kid is ignored and the provider is asked
// instead.
func (c *KeySetCache) refresh(ctx context.Context, kid string) (*keySet, error) {
	set, err := c.refreshOnce(ctx, kid, c.mirror != nil && kid != "")
	if err != nil {
		return nil, err
	}
	if _, ok := set.keys[kid]; !ok && set.source == sourceMirror {
		return c.refreshOnce(ctx, kid, false)
	}
	return set, nil
}

// refreshOnce runs one shared refresh. Mirror and provider refreshes share
// a single flight so snapshots are stored in the order they were produced.
// Callers wait for the in-flight refresh or their own context, whichever
// ends first.
func (c *KeySetCache) refreshOnce(ctx context.Context, kid string, useMirror bool) (*keySet, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()

		started := c.now()
		set, err := c.doRefresh(fetchCtx, kid, useMirror)
		c.attempt.Store(&refreshAttempt{at: started, err: err})
		return set, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySet), nil
	case <-ctx.Done():
		return nil, sserr.Dependency(ctx.Err(), "auth: waiting for key set refresh")
	}
}

func (c *KeySetCache) doRefresh(ctx context.Context, kid string, useMirror bool) (_ *keySet, err error) {
	ctx, span := startSpan(ctx, c.tracer, "auth.KeySetCache.refresh")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("auth.kid", kid))

	if useMirror {
		if set := c.loadMirror(ctx, kid); set != nil {
			span.SetAttributes(attribute.String("auth.jwks.source", sourceMirror))
			c.current.Store(set)
			c.metrics.ObserveKeySetRefresh(sourceMirror, metrics.ResultSuccess)
			return set, nil
		}
	}

	span.SetAttributes(attribute.String("auth.jwks.source", sourceProvider))
	doc, err := c.fetch(ctx)
	var keys map[string]SigningKey
	if err == nil {
		keys, err = parseKeySet(doc)
	}
	if err != nil {
		c.metrics.ObserveKeySetRefresh(sourceProvider, metrics.ResultFailure)
		return nil, err
	}

	set := &keySet{keys: keys, fetchedAt: c.now(), source: sourceProvider}
	c.current.Store(set)
	c.metrics.ObserveKeySetRefresh(sourceProvider, metrics.ResultSuccess)
	span.SetAttributes(attribute.Int("auth.jwks.keys", len(keys)))

	if c.mirror != nil {
		if err := c.mirror.Store(ctx, doc, c.cfg.CacheTTL); err != nil {
			c.logger.WarnContext(ctx, "auth: failed to store key set in mirror", "error", err)
		}
	}
	return set, nil
}

// loadMirror returns the mirrored snapshot when it parses and contains kid.
// An unusable document is removed from the mirror. Mirror problems are
// logged and otherwise ignored.
func (c *KeySetCache) loadMirror(ctx context.Context, kid string) *keySet {
	doc, err := c.mirror.Load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "auth: failed to load key set from mirror", "error", err)
		c.metrics.ObserveKeySetRefresh(sourceMirror, metrics.ResultFailure)
		return nil
	}
	if doc == nil {
		return nil
	}
	keys, err := parseKeySet(doc)
	if err != nil {
		c.logger.WarnContext(ctx, "auth: mirrored key set is unusable, clearing it", "error", err)
		c.metrics.ObserveKeySetRefresh(sourceMirror, metrics.ResultFailure)
		if err := c.mirror.Clear(ctx); err != nil {
			c.logger.WarnContext(ctx, "auth: failed to clear mirrored key set", "error", err)
		}
		return nil
	}
	if _, ok := keys[kid]; !ok {
		return nil
	}
	return &keySet{keys: keys, fetchedAt: c.now(), source: sourceMirror}
}

func (c *KeySetCache) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.JWKSURL, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "auth: failed to create JWKS request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sserr.Dependency(err, "auth: JWKS request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, sserr.Newf(sserr.CodeUnavailableDependency, "auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, sserr.Dependency(err, "auth: failed to read JWKS response")
	}
	return body, nil
}

// minRSAKeyBits rejects published RSA keys too short to trust.
const minRSAKeyBits = 2048

// parseKeySet decodes a JWKS document. Keys without an id, keys for
// encryption, symmetric keys and malformed keys are skipped. Entries are
// parsed one at a time so one bad entry does not discard the others. A
// document with no usable signing key is an error so that an empty set is
// never trusted.
func parseKeySet(doc []byte) (map[string]SigningKey, error) {
	var envelope struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "auth: failed to parse JWKS document")
	}

	keys := make(map[string]SigningKey, len(envelope.Keys))
	for _, raw := range envelope.Keys {
		parsed, err := jwk.ParseKey(raw)
		if err != nil {
			continue
		}
		key, err := signingKey(parsed)
		if err != nil {
			continue
		}
		keys[key.ID] = key
	}
	if len(keys) == 0 {
		return nil, sserr.New(sserr.CodeUnavailableDependency, "auth: JWKS document contains no usable signing keys")
	}
	return keys, nil
}

// signingKey converts a parsed JWK into a verification key. The algorithm
// comes from "alg", or from the key type and curve when absent.
func signingKey(key jwk.Key) (SigningKey, error) {
	kid := key.KeyID()
	if kid == "" {
		return SigningKey{}, fmt.Errorf("auth: key has no id")
	}
	if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
		return SigningKey{}, fmt.Errorf("auth: key %q is not for signatures", kid)
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return SigningKey{}, fmt.Errorf("auth: key %q: %w", kid, err)
	}
	alg := ""
	if a := key.Algorithm(); a != nil {
		alg = a.String()
	}

	switch pub := raw.(type) {
	case *rsa.PublicKey:
		if pub.N.BitLen() < minRSAKeyBits {
			return SigningKey{}, fmt.Errorf("auth: RSA key %q is shorter than %d bits", kid, minRSAKeyBits)
		}
		if alg == "" {
			alg = "RS256"
		}
		return SigningKey{ID: kid, Key: pub, Algorithm: alg}, nil
	case *ecdsa.PublicKey:
		if _, err := pub.ECDH(); err != nil {
			return SigningKey{}, fmt.Errorf("auth: EC key %q is not a valid curve point: %w", kid, err)
		}
		if alg == "" {
			alg = ecAlgorithm(pub.Curve.Params().Name)
		}
		return SigningKey{ID: kid, Key: pub, Algorithm: alg}, nil
	default:
		return SigningKey{}, fmt.Errorf("auth: key %q has unsupported type %s", kid, key.KeyType())
	}
}

func ecAlgorithm(crv string) string {
	switch crv {
	case "P-384":
		return "ES384"
	case "P-521":
		return "ES512"
	default:
		return "ES256"
	}
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
