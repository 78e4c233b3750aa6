package app

import (
	"log/slog"
	"strings"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/server"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/idp"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/provisioning"
)

// EnvPrefix prefixes every environment variable, e.g.
// GATEKEEPER_AUTH_JWKS_URL.
const EnvPrefix = "GATEKEEPER"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the whole service configuration. It is loaded once by
// [Load] and passed by value.
type Config struct {
	Version  string `json:"version" yaml:"version" env:"VERSION" envDefault:"dev"`
	LogLevel string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`

	Server    server.Config   `json:"server" yaml:"server" env:"SERVER"`
	Auth      auth.Config     `json:"auth" yaml:"auth" env:"AUTH"`
	Provider  idp.Config      `json:"provider" yaml:"provider" env:"PROVIDER"`
	Storage   StorageConfig   `json:"storage" yaml:"storage" env:"STORAGE"`
	Postgres  postgres.Config `json:"postgres" yaml:"postgres" env:"POSTGRES"`
	Redis     RedisConfig     `json:"redis" yaml:"redis" env:"REDIS"`
	Seed      SeedConfig      `json:"seed" yaml:"seed"`
	Bootstrap BootstrapConfig `json:"bootstrap" yaml:"bootstrap" env:"BOOTSTRAP"`
}

// StorageConfig selects the role ledger backend.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver" env:"DRIVER" envDefault:"postgres"`

	// EnsureSchema applies the user_roles DDL at startup.
	EnsureSchema bool `json:"ensure_schema" yaml:"ensure_schema" env:"ENSURE_SCHEMA"`
}

func (c *StorageConfig) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case DriverPostgres, DriverMemory:
		return nil
	case "":
		c.Driver = DriverPostgres
		return nil
	default:
		return sserr.Newf(sserr.CodeValidationFormat,
			"app: storage driver %q is not one of postgres, memory", c.Driver)
	}
}

// RedisConfig enables the shared key set mirror. The connection settings
// are flattened under the REDIS prefix.
type RedisConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	MirrorKey string `json:"mirror_key" yaml:"mirror_key" env:"MIRROR_KEY" envDefault:"gatekeeper:jwks"`

	Client redis.Config `json:"client" yaml:"client"`
}

// SeedConfig overrides the built-in seed list. It is file-only.
type SeedConfig struct {
	Accounts []provisioning.AccountRequest `json:"accounts" yaml:"accounts"`
}

// BootstrapConfig controls the startup role initializer.
type BootstrapConfig struct {
	Enabled     bool                      `json:"enabled" yaml:"enabled" env:"ENABLED" envDefault:"true"`
	Assignments []provisioning.Assignment `json:"assignments" yaml:"assignments"`
}

// Validate checks cross-field settings after each section validated
// itself.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	for i, a := range c.Seed.Accounts {
		if strings.TrimSpace(a.Email) == "" || a.Password == "" {
			return sserr.Newf(sserr.CodeValidationRequired,
				"app: seed account %d needs an email and a password", i)
		}
	}
	for i, a := range c.Bootstrap.Assignments {
		if strings.TrimSpace(a.Email) == "" || a.Role == "" {
			return sserr.Newf(sserr.CodeValidationRequired,
				"app: bootstrap assignment %d needs an email and a role", i)
		}
	}
	return nil
}

// SeedAccounts returns the configured seed list or the built-in one.
func (c Config) SeedAccounts() []provisioning.AccountRequest {
	if len(c.Seed.Accounts) > 0 {
		return c.Seed.Accounts
	}
	return provisioning.DefaultAccounts()
}

// BootstrapAssignments returns the configured assignments or the built-in
// ones.
func (c Config) BootstrapAssignments() []provisioning.Assignment {
	if len(c.Bootstrap.Assignments) > 0 {
		return c.Bootstrap.Assignments
	}
	return provisioning.DefaultAssignments()
}

// Load reads the environment and, when path is non-empty, a YAML or JSON
// file underneath it.
func Load(path string) (Config, error) {
	return load(config.New().WithEnvPrefix(EnvPrefix).WithFile(path))
}

func load(loader *config.Loader) (Config, error) {
	var cfg Config
	if err := loader.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, sserr.Wrapf(err, sserr.CodeValidationFormat, "app: unknown log level %q", s)
	}
	return level, nil
}
