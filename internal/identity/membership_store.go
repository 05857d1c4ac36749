package identity

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// PostgresMembershipStore implements MembershipStore over a durable
// memberships table, grounded on routing.PostgresStore's sqlx-scan shape
// (struct tags, EnsureSchema, plain SELECT) generalized from a route-scope
// query to a user-scope one.
type PostgresMembershipStore struct {
	db *sqlx.DB
}

// NewPostgresMembershipStore wraps an existing sqlx connection.
func NewPostgresMembershipStore(db *sqlx.DB) *PostgresMembershipStore {
	return &PostgresMembershipStore{db: db}
}

// EnsureSchema creates the memberships table if absent.
func (s *PostgresMembershipStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memberships (
			user_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (user_id, tenant_id)
		);
	`)
	return err
}

type membershipRow struct {
	UserID   string `db:"user_id"`
	TenantID string `db:"tenant_id"`
	Role     string `db:"role"`
}

// MembershipsForUser satisfies MembershipStore.
func (s *PostgresMembershipStore) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	var rows []membershipRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, tenant_id, role FROM memberships WHERE user_id = $1
	`, userID); err != nil {
		return nil, err
	}

	out := make([]Membership, 0, len(rows))
	for _, r := range rows {
		out = append(out, Membership{UserID: r.UserID, TenantID: r.TenantID, Role: Role(r.Role)})
	}
	return out, nil
}
