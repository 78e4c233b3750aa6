package auth

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Role is a role name as stored in the role ledger. Names are open-ended;
// only RoleAdmin changes behavior.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) String() string { return string(r) }

// IsAdmin reports whether r names the admin role, ignoring case. Use it to
// interpret caller input; stored roles are compared exactly.
func (r Role) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(string(r)), string(RoleAdmin))
}

// RoleStore is the local ledger of (subject, role) assignments.
//
// AddRole and RemoveRole are idempotent: adding a present pair reports
// inserted=false without error, removing an absent pair is a no-op.
type RoleStore interface {
	HasRole(ctx context.Context, subject string, role Role) (bool, error)
	AddRole(ctx context.Context, subject string, role Role) (inserted bool, err error)
	RemoveRole(ctx context.Context, subject string, role Role) error
	// RemoveAllRoles deletes every assignment of subject and returns how
	// many were removed.
	RemoveAllRoles(ctx context.Context, subject string) (int64, error)
	// AnyWithRole reports whether at least one subject holds role.
	AnyWithRole(ctx context.Context, role Role) (bool, error)
}

// Authorizer gates privileged operations on the admin role. It asks the
// store on every call; nothing is cached between calls.
type Authorizer struct {
	store  RoleStore
	tracer trace.Tracer
}

// NewAuthorizer returns an Authorizer backed by store.
func NewAuthorizer(store RoleStore) *Authorizer {
	return &Authorizer{store: store, tracer: otel.Tracer(tracerName)}
}

// IsAdmin reports whether subject holds RoleAdmin.
func (a *Authorizer) IsAdmin(ctx context.Context, subject string) (_ bool, err error) {
	ctx, span := startSpan(ctx, a.tracer, "auth.Authorizer.IsAdmin")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("auth.subject", subject))

	if subject == "" {
		return false, nil
	}
	return a.store.HasRole(ctx, subject, RoleAdmin)
}

// RequireAdmin returns CodeAuthorizationDenied unless subject is an admin.
// Store failures are returned unchanged.
func (a *Authorizer) RequireAdmin(ctx context.Context, subject string) error {
	ok, err := a.IsAdmin(ctx, subject)
	if err != nil {
		return err
	}
	if !ok {
		return sserr.Forbidden("admin privileges required")
	}
	return nil
}
