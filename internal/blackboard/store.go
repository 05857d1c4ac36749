// Package blackboard implements the Versioned Coordination Store (spec
// §4.6): shared small-value coordination state with optimistic concurrency
// via expected_version check-and-set.
package blackboard

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Entry is a single BlackboardEntry (spec §3). Version increases
// monotonically per (stream_key, key); history is retained and queryable.
type Entry struct {
	StreamKey string    `db:"stream_key"`
	Key       string    `db:"key"`
	Version   int64     `db:"version"`
	Value     []byte    `db:"value"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedBy string    `db:"updated_by"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store is the blackboard contract (spec §4.6).
type Store interface {
	Write(ctx context.Context, streamKey, key string, value []byte, expectedVersion *int64, actor string) (Entry, error)
	Read(ctx context.Context, streamKey, key string, version *int64) (Entry, bool, error)
	ListKeys(ctx context.Context, streamKey string) ([]string, error)
}

// PostgresStore implements Store. Every version of every key is retained
// as its own row (spec §3: "BlackboardEntries accumulate versions and are
// never deleted"); the latest version per key is the row with the highest
// version number, read with ORDER BY version DESC LIMIT 1.
//
// Grounded on pkg/storage/postgres/base_store.go's transaction shape: the
// check-and-set write path runs in one sqlx transaction (BeginTxx, latest
// row locked FOR UPDATE) rather than through that file's helpers, since the
// expected_version comparison and the insert must be atomic.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing sqlx connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the blackboard_entries table.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blackboard_entries (
			stream_key TEXT NOT NULL,
			key TEXT NOT NULL,
			version BIGINT NOT NULL,
			value BYTEA,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_by TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (stream_key, key, version)
		);
		CREATE INDEX IF NOT EXISTS idx_blackboard_latest ON blackboard_entries (stream_key, key, version DESC);
	`)
	return err
}

// Write performs the expected_version check-and-set (spec §4.6):
//   - expectedVersion nil and key absent -> create at version 1.
//   - expectedVersion = v and current version = v -> write version v+1.
//   - anything else -> version_conflict (409).
func (s *PostgresStore) Write(ctx context.Context, streamKey, key string, value []byte, expectedVersion *int64, actor string) (Entry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Entry{}, errs.BackendUnavailable("blackboard_store", err)
	}
	defer tx.Rollback()

	var currentVersion sql.NullInt64
	var createdBy sql.NullString
	var createdAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT version, created_by, created_at FROM blackboard_entries
		WHERE stream_key = $1 AND key = $2
		ORDER BY version DESC LIMIT 1 FOR UPDATE
	`, streamKey, key).Scan(&currentVersion, &createdBy, &createdAt)
	if err != nil && err != sql.ErrNoRows {
		return Entry{}, errs.BackendUnavailable("blackboard_store", err)
	}

	now := time.Now().UTC()
	entry := Entry{StreamKey: streamKey, Key: key, Value: value, UpdatedBy: actor, UpdatedAt: now}

	switch {
	case !currentVersion.Valid && expectedVersion == nil:
		entry.Version = 1
		entry.CreatedBy = actor
		entry.CreatedAt = now
	case currentVersion.Valid && expectedVersion != nil && currentVersion.Int64 == *expectedVersion:
		entry.Version = currentVersion.Int64 + 1
		entry.CreatedBy = createdBy.String
		entry.CreatedAt = createdAt.Time
	default:
		current := int64(0)
		if currentVersion.Valid {
			current = currentVersion.Int64
		}
		expected := int64(-1)
		if expectedVersion != nil {
			expected = *expectedVersion
		}
		return Entry{}, errs.VersionConflict(expected, current)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blackboard_entries (stream_key, key, version, value, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.StreamKey, entry.Key, entry.Version, entry.Value, entry.CreatedBy, entry.CreatedAt, entry.UpdatedBy, entry.UpdatedAt)
	if err != nil {
		return Entry{}, errs.BackendUnavailable("blackboard_store", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, errs.BackendUnavailable("blackboard_store", err)
	}
	return entry, nil
}

// Read returns the latest version of key, or a specific historical version
// when version is non-nil. A missing key/version returns found=false
// rather than an error (spec §4.6).
func (s *PostgresStore) Read(ctx context.Context, streamKey, key string, version *int64) (Entry, bool, error) {
	var row Entry
	var err error
	if version != nil {
		err = s.db.QueryRowContext(ctx, `
			SELECT stream_key, key, version, value, created_by, created_at, updated_by, updated_at
			FROM blackboard_entries WHERE stream_key = $1 AND key = $2 AND version = $3
		`, streamKey, key, *version).Scan(&row.StreamKey, &row.Key, &row.Version, &row.Value, &row.CreatedBy, &row.CreatedAt, &row.UpdatedBy, &row.UpdatedAt)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT stream_key, key, version, value, created_by, created_at, updated_by, updated_at
			FROM blackboard_entries WHERE stream_key = $1 AND key = $2 ORDER BY version DESC LIMIT 1
		`, streamKey, key).Scan(&row.StreamKey, &row.Key, &row.Version, &row.Value, &row.CreatedBy, &row.CreatedAt, &row.UpdatedBy, &row.UpdatedAt)
	}
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errs.BackendUnavailable("blackboard_store", err)
	}
	return row, true, nil
}

// ListKeys returns the distinct keys written under streamKey.
func (s *PostgresStore) ListKeys(ctx context.Context, streamKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT key FROM blackboard_entries WHERE stream_key = $1 ORDER BY key
	`, streamKey)
	if err != nil {
		return nil, errs.BackendUnavailable("blackboard_store", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.BackendUnavailable("blackboard_store", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
