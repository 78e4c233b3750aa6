// Package server exposes the gatekeeper over HTTP. Every route except the
// public allow-list passes through the authentication gate; handlers read
// the verified caller from the request context and delegate to the
// provisioning service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/lifecycle"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/provisioning"
)

const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 20 * time.Second
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// Config holds listener settings. Env tags are relative to the
// application's SERVER prefix.
type Config struct {
	Addr            string        `json:"addr" yaml:"addr" env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`

	// PublicPaths are served without a bearer token.
	PublicPaths []string `json:"public_paths" yaml:"public_paths" env:"PUBLIC_PATHS" envDefault:"/health,/metrics"`

	// AllowedOrigins lists CORS origins. A "*" in a pattern matches any
	// non-empty run, as in "https://*.vercel.app".
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// Validate applies defaults.
func (c *Config) Validate() error {
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return sserr.New(sserr.CodeValidation, "server: timeouts must not be negative")
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(c.PublicPaths) == 0 {
		c.PublicPaths = []string{"/health", "/metrics"}
	}
	return nil
}

// Provisioner is the account API served under /admin.
type Provisioner interface {
	CreateAccount(ctx context.Context, requester string, req provisioning.AccountRequest) (*provisioning.Account, error)
	DeleteAccount(ctx context.Context, requester, target string) error
	SeedDefaults(ctx context.Context, requester string) (*provisioning.SeedReport, error)
}

// HealthReporter produces the /health body.
type HealthReporter interface {
	Report(ctx context.Context) lifecycle.Report
}

// Server routes requests to handlers.
type Server struct {
	cfg         Config
	gate        *auth.Gate
	provisioner Provisioner
	health      HealthReporter
	metrics     *metrics.Metrics
	logger      *slog.Logger

	handler http.Handler
	srv     *http.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router. cfg is validated first.
func New(cfg Config, gate *auth.Gate, provisioner Provisioner, health HealthReporter, opts ...Option) (*Server, error) {
	if gate == nil || provisioner == nil || health == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "server: gate, provisioner and health reporter are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:         cfg,
		gate:        gate,
		provisioner: provisioner,
		health:      health,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(
		recovery(s.logger),
		observe(s.logger, s.metrics),
		auth.HTTPMiddleware(s.gate, auth.WithPublicPaths(s.cfg.PublicPaths...)),
	)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{userId}", s.handleDeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/seed", s.handleSeed).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Message: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Message: "Method not allowed"})
	})

	var h http.Handler = r
	if len(s.cfg.AllowedOrigins) > 0 {
		h = cors(s.cfg.AllowedOrigins)(h)
	}
	h = requestID(h)
	return otelhttp.NewHandler(h, "gatekeeper",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return sserr.Wrap(err, sserr.CodeUnavailable, "server: serve failed")
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailable, "server: listen on %s", s.cfg.Addr)
	}
	return s.Serve(ln)
}

// Shutdown drains in-flight requests, bounded by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "server: shutdown did not complete")
	}
	return nil
}
