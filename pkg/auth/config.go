package auth

import (
	"net/url"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Default values applied by [Config.Validate] to zero-valued fields.
const (
	DefaultCacheTTL           = 10 * time.Minute
	DefaultMinRefreshInterval = 30 * time.Second
	DefaultFetchTimeout       = 5 * time.Second
)

// maxTokenSize bounds the raw token length accepted by the verifier.
const maxTokenSize = 8192

// maxKeySetSize bounds the JWKS document read from the provider or mirror.
const maxKeySetSize = 1 << 20

// Config is the immutable trust configuration shared by [KeySetCache] and
// [TokenVerifier]. Build it once at startup and pass it by value.
type Config struct {
	// TrustedIssuer must equal the token's iss claim exactly.
	TrustedIssuer string `json:"trusted_issuer" yaml:"trusted_issuer" env:"TRUSTED_ISSUER" required:"true"`

	// JWKSURL is the provider's published key set endpoint.
	JWKSURL string `json:"jwks_url" yaml:"jwks_url" env:"JWKS_URL" required:"true"`

	// CacheTTL is how long a fetched key set is served before a refresh.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" env:"CACHE_TTL" envDefault:"10m"`

	// MinRefreshInterval rate-limits refreshes caused by unknown key ids.
	MinRefreshInterval time.Duration `json:"min_refresh_interval" yaml:"min_refresh_interval" env:"MIN_REFRESH_INTERVAL" envDefault:"30s"`

	// FetchTimeout bounds a single key set fetch.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"FETCH_TIMEOUT" envDefault:"5s"`
}

// Validate fills zero durations with defaults and checks required fields.
func (c *Config) Validate() error {
	if c.TrustedIssuer == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: trusted issuer is required")
	}
	if c.JWKSURL == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: JWKS URL is required")
	}
	u, err := url.Parse(c.JWKSURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return sserr.Newf(sserr.CodeValidationFormat, "auth: JWKS URL %q is not an absolute URL", c.JWKSURL)
	}
	if c.CacheTTL < 0 || c.MinRefreshInterval < 0 || c.FetchTimeout < 0 {
		return sserr.New(sserr.CodeValidation, "auth: durations must not be negative")
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.MinRefreshInterval == 0 {
		c.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return nil
}
