// Package provisioning creates and deletes accounts on behalf of admins. An
// account lives in two systems of record: the identity provider owns its
// existence and credentials, the local role ledger owns its grants.
// Operations call the provider first and write roles second; a role write
// that fails after the provider succeeded is logged for reconciliation and
// does not fail the request.
package provisioning

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/idp"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/metrics"
)

const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/provisioning"

// Operation labels for metrics.
const (
	opCreate = "create_account"
	opDelete = "delete_account"
	opSeed   = "seed_defaults"
)

// IdentityProvider is the part of the admin API the service needs.
// *idp.Client implements it.
type IdentityProvider interface {
	CreateUser(ctx context.Context, u idp.NewUser) (*idp.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// AccountRequest asks for a new account. Role is interpreted
// case-insensitively: any spelling of "admin" grants [auth.RoleAdmin],
// anything else grants nothing locally.
type AccountRequest struct {
	Email    string        `json:"email" yaml:"email"`
	Password config.Secret `json:"password" yaml:"password"`
	Username string        `json:"username" yaml:"username"`
	FullName string        `json:"fullName" yaml:"full_name"`
	Role     auth.Role     `json:"role" yaml:"role"`
}

// LogValue omits the password.
func (r AccountRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", r.Email),
		slog.String("username", r.Username),
		slog.String("role", r.Role.String()),
	)
}

// Account is the result of a successful create. RoleAssigned is false when
// an admin grant was requested but could not be recorded.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         auth.Role `json:"role,omitempty"`
	RoleAssigned bool      `json:"roleAssigned"`
}

// Service runs account operations. It is safe for concurrent use.
type Service struct {
	provider IdentityProvider
	roles    auth.RoleStore
	authz    *auth.Authorizer
	defaults []AccountRequest
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records operations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultAccounts replaces the list used by SeedDefaults.
func WithDefaultAccounts(accounts []AccountRequest) Option {
	return func(s *Service) { s.defaults = append([]AccountRequest(nil), accounts...) }
}

// NewService returns a Service that authorizes callers against roles.
func NewService(provider IdentityProvider, roles auth.RoleStore, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "provisioning: identity provider is required")
	}
	if roles == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "provisioning: role store is required")
	}
	s := &Service{
		provider: provider,
		roles:    roles,
		authz:    auth.NewAuthorizer(roles),
		defaults: DefaultAccounts(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAccount creates an account at the provider and, when the request
// asks for admin, records the grant locally. requester must be an admin.
//
// The provider call is made at most once. If it succeeds and the role
// write fails, the account is returned with RoleAssigned=false and no
// error.
func (s *Service) CreateAccount(ctx context.Context, requester string, req AccountRequest) (_ *Account, err error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.CreateAccount")
	defer func() { s.finish(span, opCreate, err) }()

	if err := s.authz.RequireAdmin(ctx, requester); err != nil {
		return nil, err
	}
	return s.create(ctx, span, req)
}

func (s *Service) create(ctx context.Context, span trace.Span, req AccountRequest) (*Account, error) {
	email := strings.TrimSpace(req.Email)
	if err := validateRequest(email, req.Password); err != nil {
		return nil, err
	}

	user, err := s.provider.CreateUser(ctx, idp.NewUser{
		Email:    email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provisioning.account_id", user.ID))

	account := &Account{ID: user.ID, Email: email}
	if !req.Role.IsAdmin() {
		return account, nil
	}

	account.Role = auth.RoleAdmin
	if _, err := s.roles.AddRole(ctx, user.ID, auth.RoleAdmin); err != nil {
		s.logger.ErrorContext(ctx, "provisioning: role grant pending reconciliation",
			"account_id", user.ID,
			"role", auth.RoleAdmin,
			"error", err,
		)
		s.metrics.RecordReconciliationPending()
		span.AddEvent("role grant failed")
		return account, nil
	}
	account.RoleAssigned = true
	return account, nil
}

func validateRequest(email string, password config.Secret) error {
	if email == "" {
		return sserr.New(sserr.CodeValidationRequired, "email is required")
	}
	if strings.TrimSpace(password.Value()) == "" {
		return sserr.New(sserr.CodeValidationRequired, "password is required")
	}
	if !strings.Contains(email, "@") {
		return sserr.New(sserr.CodeValidationFormat, "email must contain @")
	}
	return nil
}

// DeleteAccount removes target at the provider and then drops its local
// grants. requester must be an admin and may not delete itself; both checks
// happen before any provider call. Failing to drop grants is logged only.
func (s *Service) DeleteAccount(ctx context.Context, requester, target string) (err error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.DeleteAccount")
	defer func() { s.finish(span, opDelete, err) }()
	span.SetAttributes(attribute.String("provisioning.account_id", target))

	if err := s.authz.RequireAdmin(ctx, requester); err != nil {
		return err
	}
	if strings.TrimSpace(target) == "" {
		return sserr.New(sserr.CodeValidationRequired, "user id is required")
	}
	if requester == target {
		return sserr.Forbidden("cannot delete own account")
	}

	if err := s.provider.DeleteUser(ctx, target); err != nil {
		return err
	}

	if n, err := s.roles.RemoveAllRoles(ctx, target); err != nil {
		s.logger.ErrorContext(ctx, "provisioning: stale role grants left for deleted account",
			"account_id", target,
			"error", err,
		)
	} else if n > 0 {
		s.logger.InfoContext(ctx, "provisioning: removed role grants of deleted account",
			"account_id", target,
			"removed", n,
		)
	}
	return nil
}

func (s *Service) finish(span trace.Span, op string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(sserr.GetCode(err))))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	s.metrics.ObserveProvisioning(op, result)
	span.End()
}

// errorSummary is the client-safe description of a seed item failure.
func errorSummary(err error) string {
	var e *sserr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
