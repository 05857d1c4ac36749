// Package postgres implements the backend.Tabular capability contract over
// a single generic (table, key) -> JSONB record store, grounded on
// pkg/storage/crud.go's Entity/CRUDStore shape, generalized from typed
// per-service Go structs into an opaque []byte record so one adapter
// serves every resource_kind routed to tabular_store.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Adapter implements backend.Tabular over Postgres.
type Adapter struct {
	db *sqlx.DB
}

// New wraps an existing sqlx connection.
func New(db *sqlx.DB) *Adapter {
	return &Adapter{db: db}
}

// EnsureSchema creates the generic tabular_records table.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tabular_records (
			table_name TEXT NOT NULL,
			key TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			record BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, key)
		);
		CREATE INDEX IF NOT EXISTS idx_tabular_records_prefix ON tabular_records (table_name, key text_pattern_ops);
	`)
	return err
}

// Upsert satisfies backend.Tabular.Upsert.
func (a *Adapter) Upsert(ctx context.Context, table, key string, record []byte) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO tabular_records (table_name, key, version, record, updated_at)
		VALUES ($1, $2, 1, $3, now())
		ON CONFLICT (table_name, key) DO UPDATE SET
			version = tabular_records.version + 1,
			record = EXCLUDED.record,
			updated_at = now()
	`, table, key, record)
	if err != nil {
		return errs.BackendUnavailable("tabular_store", err)
	}
	return nil
}

// Get satisfies backend.Tabular.Get. version is currently advisory: this
// adapter keeps only the latest record per key (unlike the blackboard
// store, tabular records have no historical-version requirement in spec
// §4.3) and returns not-found if the requested version does not match the
// stored one.
func (a *Adapter) Get(ctx context.Context, table, key string, version *int64) ([]byte, error) {
	var record []byte
	var storedVersion int64
	err := a.db.QueryRowContext(ctx, `
		SELECT record, version FROM tabular_records WHERE table_name = $1 AND key = $2
	`, table, key).Scan(&record, &storedVersion)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound(table, key)
	}
	if err != nil {
		return nil, errs.BackendUnavailable("tabular_store", err)
	}
	if version != nil && *version != storedVersion {
		return nil, errs.NotFound(table, key)
	}
	return record, nil
}

// List satisfies backend.Tabular.List, paging by key using a simple
// keyset cursor (the last key returned).
func (a *Adapter) List(ctx context.Context, table, prefix, cursor string) ([][]byte, string, error) {
	const limit = 100
	query := `SELECT key, record FROM tabular_records WHERE table_name = $1 AND key LIKE $2`
	args := []any{table, prefix + "%"}
	if cursor != "" {
		query += ` AND key > $3 ORDER BY key LIMIT $4`
		args = append(args, cursor, limit)
	} else {
		query += ` ORDER BY key LIMIT $3`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", errs.BackendUnavailable("tabular_store", err)
	}
	defer rows.Close()

	var records [][]byte
	var lastKey string
	for rows.Next() {
		var key string
		var record []byte
		if err := rows.Scan(&key, &record); err != nil {
			return nil, "", errs.BackendUnavailable("tabular_store", err)
		}
		records = append(records, record)
		lastKey = key
	}

	nextCursor := ""
	if len(records) == limit {
		nextCursor = lastKey
	}
	return records, nextCursor, rows.Err()
}
