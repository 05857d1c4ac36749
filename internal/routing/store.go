package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Store is the durable backing for the routing registry. It is itself
// routed (resource_kind=routing_registry) but, per spec §4.2, is the one
// registry whose initial backend is chosen by a bootstrap environment
// variable rather than resolved through itself — PostgresStore is that
// bootstrap backend.
type Store interface {
	Upsert(ctx context.Context, route ResourceRoute) (ResourceRoute, error)
	Get(ctx context.Context, id string) (ResourceRoute, error)
	List(ctx context.Context, filters ListFilters) ([]ResourceRoute, error)
	Delete(ctx context.Context, id string) error
}

// ListFilters narrows List to a subset of routes; zero-value fields are not
// applied as predicates.
type ListFilters struct {
	ResourceKind ResourceKind
	TenantID     string
	Env          string
	IncludeSoftDeleted bool
}

// PostgresStore is a sqlx-backed Store, grounded on
// system/events/store_postgres.go's direct-SQL scan shape, keeping that
// file's hand-written field-by-field Scan calls rather than sqlx's
// struct-tag scanning.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing sqlx connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the routes table if absent. Migrations proper are
// handled by golang-migrate; this exists for the lab/dev bootstrap path
// where there is no migrations runner in front of the process yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS resource_routes (
			id TEXT PRIMARY KEY,
			resource_kind TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			env TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			surface_id TEXT NOT NULL DEFAULT '',
			backend_type TEXT NOT NULL,
			config JSONB,
			required BOOLEAN NOT NULL DEFAULT false,
			tier TEXT NOT NULL DEFAULT '',
			cost_notes TEXT NOT NULL DEFAULT '',
			health_status TEXT NOT NULL DEFAULT '',
			previous_backend_type TEXT NOT NULL DEFAULT '',
			last_switch_time TIMESTAMPTZ,
			switch_rationale TEXT NOT NULL DEFAULT '',
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (resource_kind, tenant_id, env, project_id)
		);
		CREATE INDEX IF NOT EXISTS idx_resource_routes_scope
			ON resource_routes (resource_kind, tenant_id, env, project_id)
			WHERE deleted_at IS NULL;
	`)
	return err
}

// Upsert creates or updates a route by (resource_kind, tenant_id, env,
// project_id). When updating, the prior backend_type is captured into
// PreviousBackendType and LastSwitchTime is stamped (spec §4.2).
func (s *PostgresStore) Upsert(ctx context.Context, route ResourceRoute) (ResourceRoute, error) {
	config, err := json.Marshal(route.Config)
	if err != nil {
		return ResourceRoute{}, fmt.Errorf("marshal route config: %w", err)
	}

	existing, err := s.findByScope(ctx, route.ResourceKind, route.TenantID, route.Env, route.ProjectID)
	if err != nil && err != sql.ErrNoRows {
		return ResourceRoute{}, errs.BackendUnavailable(string(ResourceRoutingRegistry), err)
	}

	now := time.Now().UTC()
	if err == sql.ErrNoRows {
		if route.ID == "" {
			route.ID = newRouteID(route.ResourceKind, route.TenantID, route.Env, route.ProjectID)
		}
		route.CreatedAt = now
		route.UpdatedAt = now

		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO resource_routes (
				id, resource_kind, tenant_id, env, project_id, surface_id,
				backend_type, config, required, tier, cost_notes, health_status,
				previous_backend_type, last_switch_time, switch_rationale,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10, $11, $12,
				$13, $14, $15,
				$16, $17
			)
		`,
			route.ID, route.ResourceKind, route.TenantID, route.Env, route.ProjectID, route.SurfaceID,
			route.BackendType, config, route.Required, route.Tier, route.CostNotes, route.HealthStatus,
			route.PreviousBackendType, route.LastSwitchTime, route.SwitchRationale,
			route.CreatedAt, route.UpdatedAt,
		)
		if execErr != nil {
			return ResourceRoute{}, errs.BackendUnavailable(string(ResourceRoutingRegistry), execErr)
		}
		return route, nil
	}

	route.ID = existing.ID
	route.CreatedAt = existing.CreatedAt
	route.UpdatedAt = now
	if route.BackendType != existing.BackendType {
		route.PreviousBackendType = existing.BackendType
		route.LastSwitchTime = &now
	} else {
		route.PreviousBackendType = existing.PreviousBackendType
		route.LastSwitchTime = existing.LastSwitchTime
	}

	_, execErr := s.db.ExecContext(ctx, `
		UPDATE resource_routes SET
			surface_id = $2, backend_type = $3, config = $4, required = $5,
			tier = $6, cost_notes = $7, health_status = $8,
			previous_backend_type = $9, last_switch_time = $10, switch_rationale = $11,
			updated_at = $12
		WHERE id = $1
	`,
		route.ID, route.SurfaceID, route.BackendType, config, route.Required,
		route.Tier, route.CostNotes, route.HealthStatus,
		route.PreviousBackendType, route.LastSwitchTime, route.SwitchRationale,
		route.UpdatedAt,
	)
	if execErr != nil {
		return ResourceRoute{}, errs.BackendUnavailable(string(ResourceRoutingRegistry), execErr)
	}
	return route, nil
}

func (s *PostgresStore) findByScope(ctx context.Context, kind ResourceKind, tenantID, env, projectID string) (ResourceRoute, error) {
	var row ResourceRoute
	var config []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, resource_kind, tenant_id, env, project_id, surface_id,
			backend_type, config, required, tier, cost_notes, health_status,
			previous_backend_type, last_switch_time, switch_rationale,
			created_at, updated_at
		FROM resource_routes
		WHERE resource_kind = $1 AND tenant_id = $2 AND env = $3 AND project_id = $4 AND deleted_at IS NULL
	`, kind, tenantID, env, projectID).Scan(
		&row.ID, &row.ResourceKind, &row.TenantID, &row.Env, &row.ProjectID, &row.SurfaceID,
		&row.BackendType, &config, &row.Required, &row.Tier, &row.CostNotes, &row.HealthStatus,
		&row.PreviousBackendType, &row.LastSwitchTime, &row.SwitchRationale,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return ResourceRoute{}, err
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &row.Config)
	}
	return row, nil
}

// Get retrieves a route by id, regardless of scope.
func (s *PostgresStore) Get(ctx context.Context, id string) (ResourceRoute, error) {
	var row ResourceRoute
	var config []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, resource_kind, tenant_id, env, project_id, surface_id,
			backend_type, config, required, tier, cost_notes, health_status,
			previous_backend_type, last_switch_time, switch_rationale,
			created_at, updated_at
		FROM resource_routes WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(
		&row.ID, &row.ResourceKind, &row.TenantID, &row.Env, &row.ProjectID, &row.SurfaceID,
		&row.BackendType, &config, &row.Required, &row.Tier, &row.CostNotes, &row.HealthStatus,
		&row.PreviousBackendType, &row.LastSwitchTime, &row.SwitchRationale,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return ResourceRoute{}, errs.NotFound(string(ResourceRoutingRegistry), id)
	}
	if err != nil {
		return ResourceRoute{}, errs.BackendUnavailable(string(ResourceRoutingRegistry), err)
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &row.Config)
	}
	return row, nil
}

// List returns routes matching filters, grounded on the incremental
// WHERE-clause building in system/events/store_postgres.go's List/ListPending.
func (s *PostgresStore) List(ctx context.Context, filters ListFilters) ([]ResourceRoute, error) {
	query := `
		SELECT id, resource_kind, tenant_id, env, project_id, surface_id,
			backend_type, config, required, tier, cost_notes, health_status,
			previous_backend_type, last_switch_time, switch_rationale,
			created_at, updated_at
		FROM resource_routes WHERE 1=1
	`
	var args []any
	argNum := 1

	if !filters.IncludeSoftDeleted {
		query += " AND deleted_at IS NULL"
	}
	if filters.ResourceKind != "" {
		query += fmt.Sprintf(" AND resource_kind = $%d", argNum)
		args = append(args, filters.ResourceKind)
		argNum++
	}
	if filters.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argNum)
		args = append(args, filters.TenantID)
		argNum++
	}
	if filters.Env != "" {
		query += fmt.Sprintf(" AND env = $%d", argNum)
		args = append(args, filters.Env)
		argNum++
	}
	query += " ORDER BY resource_kind, tenant_id, env, project_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.BackendUnavailable(string(ResourceRoutingRegistry), err)
	}
	defer rows.Close()

	var routes []ResourceRoute
	for rows.Next() {
		var row ResourceRoute
		var config []byte
		if err := rows.Scan(
			&row.ID, &row.ResourceKind, &row.TenantID, &row.Env, &row.ProjectID, &row.SurfaceID,
			&row.BackendType, &config, &row.Required, &row.Tier, &row.CostNotes, &row.HealthStatus,
			&row.PreviousBackendType, &row.LastSwitchTime, &row.SwitchRationale,
			&row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, errs.BackendUnavailable(string(ResourceRoutingRegistry), err)
		}
		if len(config) > 0 {
			_ = json.Unmarshal(config, &row.Config)
		}
		routes = append(routes, row)
	}
	return routes, rows.Err()
}

// Delete soft-deletes a route, retaining its row for audit (spec §4.2).
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resource_routes SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return errs.BackendUnavailable(string(ResourceRoutingRegistry), err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errs.NotFound(string(ResourceRoutingRegistry), id)
	}
	return nil
}

func newRouteID(kind ResourceKind, tenantID, env, projectID string) string {
	return fmt.Sprintf("route_%s_%s_%s_%s", kind, tenantID, env, projectID)
}

var _ Store = (*PostgresStore)(nil)
