// Package idp is a client for the identity provider's admin API. It creates
// and deletes accounts and looks them up by email, authenticating with the
// service key from configuration.
//
//	client, err := idp.NewClient(cfg)
//	user, err := client.CreateUser(ctx, idp.NewUser{Email: "a@example.com", Password: pw})
//
// Calls are never retried. Transport failures and timeouts are returned as
// retryable dependency errors; rejections by the provider are
// [sserr.CodeProvisioningFailed] or a more specific code.
package idp

import (
	"net/url"
	"strings"
	"time"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

const (
	DefaultTimeout = 10 * time.Second

	// DefaultPageSize is the per_page value used when listing accounts.
	DefaultPageSize = 100

	// DefaultMaxPages bounds FindUserByEmail.
	DefaultMaxPages = 50
)

// maxResponseSize bounds provider response bodies.
const maxResponseSize = 1 << 20

// Config locates the admin API. The env tags are relative to the PROVIDER
// prefix of the application config.
type Config struct {
	// BaseURL is the provider root, e.g. https://project.supabase.co.
	BaseURL    string        `json:"base_url" yaml:"base_url" env:"BASE_URL" required:"true"`
	ServiceKey config.Secret `json:"-" yaml:"service_key" env:"SERVICE_KEY" required:"true"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT" envDefault:"10s"`
	PageSize   int           `json:"page_size" yaml:"page_size" env:"PAGE_SIZE"`
	MaxPages   int           `json:"max_pages" yaml:"max_pages" env:"MAX_PAGES"`
}

// Validate checks the base URL and key and applies defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return sserr.New(sserr.CodeValidationRequired, "idp: base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return sserr.Newf(sserr.CodeValidationFormat, "idp: base URL %q is not an absolute URL", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ServiceKey.Value() == "" {
		return sserr.New(sserr.CodeValidationRequired, "idp: service key is required")
	}
	if c.Timeout < 0 || c.PageSize < 0 || c.MaxPages < 0 {
		return sserr.New(sserr.CodeValidation, "idp: timeout and paging limits must not be negative")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	return nil
}
