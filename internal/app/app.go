// Package app assembles the gatekeeper from its configuration: the key
// set cache and verifier, the role ledger, the identity provider client,
// the provisioning service and the HTTP server, all driven by one
// lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/server"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/idp"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/lifecycle"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/provisioning"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/roles"
)

// ServiceName names the lifecycle and the telemetry resources.
const ServiceName = "gatekeeper"

// ledger is the role store plus a health check.
type ledger interface {
	auth.RoleStore
	Health(ctx context.Context) error
}

// App owns every long-lived component.
type App struct {
	cfg    Config
	logger *slog.Logger

	Metrics      *metrics.Metrics
	Keys         *auth.KeySetCache
	Roles        ledger
	Provider     *idp.Client
	Provisioning *provisioning.Service
	Lifecycle    *lifecycle.Service
	Server       *server.Server

	db        *postgres.Client
	cache     *redis.Client
	bootstrap *provisioning.Bootstrapper
	closers   []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	roles    ledger
}

// WithLogger sets the root logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry sets the metrics registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// withRoles injects a ledger instead of the configured driver.
func withRoles(l ledger) Option {
	return func(o *options) { o.roles = l }
}

// NewLogger builds the JSON logger used by the binary. Records logged
// with a request context carry its request id.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(server.NewLogHandler(h)).With("service", ServiceName), nil
}

// New connects to the configured backends and wires the components. The
// returned App has not started; call Run or Lifecycle.Start.
func New(ctx context.Context, cfg Config, opts ...Option) (_ *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	a := &App{cfg: cfg, logger: o.logger, Metrics: metrics.New(o.registry)}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	if err := a.openRoles(ctx, o.roles); err != nil {
		return nil, err
	}
	if err := a.openKeys(ctx); err != nil {
		return nil, err
	}

	verifier, err := auth.NewTokenVerifier(cfg.Auth, a.Keys, auth.WithVerifierMetrics(a.Metrics))
	if err != nil {
		return nil, err
	}

	a.Provider, err = idp.NewClient(cfg.Provider)
	if err != nil {
		return nil, err
	}

	a.Provisioning, err = provisioning.NewService(a.Provider, a.Roles,
		provisioning.WithLogger(a.logger),
		provisioning.WithMetrics(a.Metrics),
		provisioning.WithDefaultAccounts(cfg.SeedAccounts()),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Bootstrap.Enabled {
		a.bootstrap = provisioning.NewBootstrapper(a.Provider, a.Roles, cfg.BootstrapAssignments(), a.logger)
	}

	if err := a.buildLifecycle(); err != nil {
		return nil, err
	}

	a.Server, err = server.New(cfg.Server, auth.NewGate(verifier, a.logger), a.Provisioning, a.Lifecycle,
		server.WithLogger(a.logger),
		server.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openRoles(ctx context.Context, injected ledger) error {
	if injected != nil {
		a.Roles = injected
		return nil
	}
	switch a.cfg.Storage.Driver {
	case DriverMemory:
		a.logger.WarnContext(ctx, "app: using in-memory role ledger; grants are lost on restart")
		a.Roles = roles.NewMemoryStore()
		return nil
	default:
		db, err := postgres.NewClient(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		a.Roles = roles.NewPostgresStore(db)
		return nil
	}
}

func (a *App) openKeys(ctx context.Context) error {
	cacheOpts := []auth.CacheOption{
		auth.WithCacheLogger(a.logger),
		auth.WithCacheMetrics(a.Metrics),
	}
	if a.cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, a.cfg.Redis.Client)
		if err != nil {
			return err
		}
		a.cache = client
		a.closers = append(a.closers, client.Close)
		cacheOpts = append(cacheOpts, auth.WithMirror(redis.NewKeySetMirror(client, a.cfg.Redis.MirrorKey)))
	}

	keys, err := auth.NewKeySetCache(a.cfg.Auth, cacheOpts...)
	if err != nil {
		return err
	}
	a.Keys = keys
	return nil
}

func (a *App) buildLifecycle() error {
	b := lifecycle.NewBuilder(ServiceName, a.cfg.Version).
		WithLogger(a.logger).
		WithOnStart(a.onStart).
		WithOnStop(func(context.Context) error { return a.close() }).
		WithCheck("roles", a.Roles.Health).
		WithCheck("provider", a.Provider.Health).
		OnStateChange(func(old, next lifecycle.State) {
			a.logger.Info("app: state transition", "from", old.String(), "to", next.String())
		})
	if a.cache != nil {
		b = b.WithCheck("redis", a.cache.Health)
	}

	svc, err := b.Build()
	if err != nil {
		return err
	}
	a.Lifecycle = svc
	return nil
}

// onStart checks the ledger, optionally applies its schema, warms the key
// set and runs the bootstrap initializer. Only the ledger and bootstrap
// steps can fail startup.
func (a *App) onStart(ctx context.Context) error {
	if err := a.Roles.Health(ctx); err != nil {
		return err
	}
	if a.cfg.Storage.EnsureSchema {
		if pg, ok := a.Roles.(*roles.PostgresStore); ok {
			if err := pg.EnsureSchema(ctx); err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "app: role ledger schema applied")
		}
	}

	if err := a.Keys.Refresh(ctx); err != nil {
		a.logger.WarnContext(ctx, "app: signing keys not warmed; first request will fetch", "error", err)
	} else {
		a.logger.InfoContext(ctx, "app: signing keys warmed", "keys", a.Keys.Len())
	}

	if a.bootstrap != nil {
		granted, err := a.bootstrap.Run(ctx)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeInternal, "app: bootstrap role initializer failed")
		}
		a.logger.InfoContext(ctx, "app: bootstrap complete", "granted", granted)
	}
	return nil
}

// Run starts the lifecycle, serves until ctx is cancelled, then drains
// the server and stops.
func (a *App) Run(ctx context.Context) error {
	if err := a.Lifecycle.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Server.ListenAndServe() }()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("app: shutdown requested")
	case runErr = <-serveErr:
		a.logger.Error("app: server stopped unexpectedly", "error", runErr)
	}

	// The parent context is already done; shutdown gets its own budget.
	shutdownCtx := context.WithoutCancel(ctx)
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := a.Lifecycle.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
