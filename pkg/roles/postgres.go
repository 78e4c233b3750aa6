package roles

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

const (
	sqlHasRole = `SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`

	sqlAddRole = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id, role) DO NOTHING`

	sqlRemoveRole = `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`

	sqlRemoveAllRoles = `DELETE FROM user_roles WHERE user_id = $1`

	sqlAnyWithRole = `SELECT EXISTS(SELECT 1 FROM user_roles WHERE role = $1)`

	// Replicas starting together apply the DDL one at a time.
	sqlSchemaLock = `SELECT pg_advisory_xact_lock(hashtext('gatekeeper.user_roles'))`
)

// PostgresStore is an [auth.RoleStore] backed by the user_roles table.
// Errors carry the codes of the postgres client: CodeTimeoutDatabase for
// deadlines and CodeInternalDatabase otherwise.
type PostgresStore struct {
	db *postgres.Client
}

var _ auth.RoleStore = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies [Schema] in one transaction under an advisory lock.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlSchemaLock); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, Schema)
		return err
	})
}

func (s *PostgresStore) HasRole(ctx context.Context, subject string, role auth.Role) (bool, error) {
	if subject == "" {
		return false, nil
	}
	var ok bool
	err := s.db.QueryRow(ctx, sqlHasRole, subject, string(role)).Scan(&ok)
	if err != nil {
		return false, postgres.WrapScanError(err, "roles: role lookup failed")
	}
	return ok, nil
}

// AddRole inserts the assignment. A concurrent or repeated insert of the
// same pair reports inserted=false.
func (s *PostgresStore) AddRole(ctx context.Context, subject string, role auth.Role) (bool, error) {
	if err := validateAssignment(subject, role); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, sqlAddRole, subject, string(role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RemoveRole(ctx context.Context, subject string, role auth.Role) error {
	if err := validateAssignment(subject, role); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, sqlRemoveRole, subject, string(role))
	return err
}

func (s *PostgresStore) RemoveAllRoles(ctx context.Context, subject string) (int64, error) {
	if subject == "" {
		return 0, sserr.New(sserr.CodeValidationRequired, "roles: subject is required")
	}
	tag, err := s.db.Exec(ctx, sqlRemoveAllRoles, subject)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AnyWithRole(ctx context.Context, role auth.Role) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, sqlAnyWithRole, string(role)).Scan(&ok)
	if err != nil {
		return false, postgres.WrapScanError(err, "roles: role lookup failed")
	}
	return ok, nil
}

// Health reports whether the database is reachable.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

func validateAssignment(subject string, role auth.Role) error {
	if subject == "" {
		return sserr.New(sserr.CodeValidationRequired, "roles: subject is required")
	}
	if role == "" {
		return sserr.New(sserr.CodeValidationRequired, "roles: role is required")
	}
	return nil
}
