package roles

// Schema is the DDL for the role ledger. It is idempotent and is applied
// by [PostgresStore.EnsureSchema] when the service is configured to manage
// its own table.
const Schema = `
CREATE TABLE IF NOT EXISTS user_roles (
	user_id    TEXT        NOT NULL,
	role       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, role)
);
CREATE INDEX IF NOT EXISTS user_roles_role_idx ON user_roles (role);
`
