package provisioning

import (
	"context"
	"log/slog"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/idp"
)

// AccountFinder looks up an existing account by email. *idp.Client
// implements it.
type AccountFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*idp.User, error)
}

// Assignment grants Role to the account registered under Email.
type Assignment struct {
	Email string    `json:"email" yaml:"email"`
	Role  auth.Role `json:"role" yaml:"role"`
}

// DefaultAssignments matches [DefaultAccounts].
func DefaultAssignments() []Assignment {
	return []Assignment{
		{Email: "admin@powerzone.com", Role: auth.RoleAdmin},
		{Email: "member@powerzone.com", Role: auth.RoleUser},
	}
}

// Bootstrapper gives a fresh role ledger its first admin. Accounts must
// already exist at the provider; it only records grants.
type Bootstrapper struct {
	finder      AccountFinder
	roles       auth.RoleStore
	assignments []Assignment
	logger      *slog.Logger
}

// NewBootstrapper returns a Bootstrapper. A nil logger means
// slog.Default().
func NewBootstrapper(finder AccountFinder, roles auth.RoleStore, assignments []Assignment, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		finder:      finder,
		roles:       roles,
		assignments: append([]Assignment(nil), assignments...),
		logger:      logger,
	}
}

// Run does nothing when any subject already holds the admin role.
// Otherwise it resolves each assignment's account and records the grant,
// returning how many grants were inserted. Accounts that cannot be found
// or granted are skipped with a warning; only a failure to read the ledger
// is returned.
func (b *Bootstrapper) Run(ctx context.Context) (int, error) {
	seeded, err := b.roles.AnyWithRole(ctx, auth.RoleAdmin)
	if err != nil {
		return 0, err
	}
	if seeded {
		b.logger.DebugContext(ctx, "provisioning: admin already present, bootstrap skipped")
		return 0, nil
	}

	granted := 0
	for _, a := range b.assignments {
		user, err := b.finder.FindUserByEmail(ctx, a.Email)
		if err != nil {
			b.logger.WarnContext(ctx, "provisioning: bootstrap account not resolved",
				"email", a.Email,
				"role", a.Role,
				"error", err,
			)
			continue
		}
		inserted, err := b.roles.AddRole(ctx, user.ID, a.Role)
		if err != nil {
			b.logger.WarnContext(ctx, "provisioning: bootstrap grant failed",
				"account_id", user.ID,
				"role", a.Role,
				"error", err,
			)
			continue
		}
		if inserted {
			granted++
		}
	}
	b.logger.InfoContext(ctx, "provisioning: bootstrap complete", "granted", granted)
	return granted, nil
}
