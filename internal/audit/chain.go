// Package audit implements the tamper-evident Audit Chain (spec §4.7): a
// per-tenant hash chain over control-plane actions and security-sensitive
// events.
package audit

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/sha3"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Entry is an AuditEntry (spec §3): an EventEnvelope-shaped record with
// storage_class=audit plus the hash-chain fields.
type Entry struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	EventType string    `db:"event_type"`
	Payload   []byte    `db:"payload"`
	PrevHash  string    `db:"prev_hash"`
	Hash      string    `db:"hash"`
	CreatedAt time.Time `db:"created_at"`
}

// Chain is the append-only, per-tenant audit chain contract (spec §4.7).
type Chain interface {
	Append(ctx context.Context, tenantID, eventType string, payload any) (Entry, error)
	Verify(ctx context.Context, tenantID string) (VerifyResult, error)
	// Erase performs the explicit retention/erasure operation, which itself
	// records an audit entry documenting the erasure (spec §4.7).
	Erase(ctx context.Context, tenantID string, before time.Time, actor string) (erased int, err error)
}

// VerifyResult reports the outcome of recomputing a tenant's chain.
type VerifyResult struct {
	OK              bool
	EntriesChecked  int
	FirstBadEntryID string
}

// PostgresChain implements Chain over Postgres, grounded on the
// append-and-link pattern of internal/events.PostgresStore's Append
// (serialize by locking the latest row for the tenant, then insert the
// next link) but simplified: an audit chain has no stream concept, only a
// single linear per-tenant sequence, so there is no separate seq/event_id
// split the way stream_events has.
type PostgresChain struct {
	db *sqlx.DB
}

// NewPostgresChain wraps an existing sqlx connection.
func NewPostgresChain(db *sqlx.DB) *PostgresChain {
	return &PostgresChain{db: db}
}

// EnsureSchema creates the audit_entries table.
func (c *PostgresChain) EnsureSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			prev_hash TEXT NOT NULL DEFAULT '',
			hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (tenant_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_tenant_seq ON audit_entries (tenant_id, seq);
	`)
	return err
}

func computeHash(payload []byte, prevHash string) string {
	sum := sha3.Sum256(append(payload, []byte(prevHash)...))
	return hex.EncodeToString(sum[:])
}

// Append writes the next link in tenantID's chain: hash = H(payload ||
// prev_hash) (spec §3/§4.7). Writes are append-only; there is no update or
// hard-delete path on this type, only Erase.
func (c *PostgresChain) Append(ctx context.Context, tenantID, eventType string, payload any) (Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, errs.Wrap(errs.CodeStreamWriteFailed, 500, "marshal audit payload", err)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return Entry{}, errs.BackendUnavailable("audit_stream", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	var prevHash sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT seq, hash FROM audit_entries WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE
	`, tenantID).Scan(&maxSeq, &prevHash)
	if err != nil && err != sql.ErrNoRows {
		return Entry{}, errs.BackendUnavailable("audit_stream", err)
	}

	nextSeq := int64(1)
	if maxSeq.Valid {
		nextSeq = maxSeq.Int64 + 1
	}

	entry := Entry{
		ID:        auditEntryID(tenantID, nextSeq),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   payloadJSON,
		PrevHash:  prevHash.String,
		Hash:      computeHash(payloadJSON, prevHash.String),
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, tenant_id, seq, event_type, payload, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.TenantID, nextSeq, entry.EventType, entry.Payload, entry.PrevHash, entry.Hash, entry.CreatedAt)
	if err != nil {
		return Entry{}, errs.BackendUnavailable("audit_stream", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, errs.BackendUnavailable("audit_stream", err)
	}
	return entry, nil
}

// Verify recomputes every hash in tenantID's chain and flags the first
// discrepancy (spec §4.7).
func (c *PostgresChain) Verify(ctx context.Context, tenantID string) (VerifyResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, payload, prev_hash, hash FROM audit_entries WHERE tenant_id = $1 ORDER BY seq ASC
	`, tenantID)
	if err != nil {
		return VerifyResult{}, errs.BackendUnavailable("audit_stream", err)
	}
	defer rows.Close()

	result := VerifyResult{OK: true}
	expectedPrevHash := ""
	for rows.Next() {
		var id, prevHash, hash string
		var payload []byte
		if err := rows.Scan(&id, &payload, &prevHash, &hash); err != nil {
			return VerifyResult{}, errs.BackendUnavailable("audit_stream", err)
		}
		result.EntriesChecked++

		if prevHash != expectedPrevHash || computeHash(payload, prevHash) != hash {
			result.OK = false
			result.FirstBadEntryID = id
			break
		}
		expectedPrevHash = hash
	}
	return result, rows.Err()
}

// Erase deletes entries older than before for tenantID, recording an audit
// entry about the erasure itself before performing it (spec §4.7: "deletion
// is forbidden except via an explicit retention/erasure operation that
// itself records an audit entry").
func (c *PostgresChain) Erase(ctx context.Context, tenantID string, before time.Time, actor string) (int, error) {
	if _, err := c.Append(ctx, tenantID, "AUDIT_RETENTION_ERASURE", map[string]any{
		"actor":  actor,
		"before": before,
	}); err != nil {
		return 0, err
	}

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM audit_entries WHERE tenant_id = $1 AND created_at < $2 AND event_type != 'AUDIT_RETENTION_ERASURE'
	`, tenantID, before)
	if err != nil {
		return 0, errs.BackendUnavailable("audit_stream", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func auditEntryID(tenantID string, seq int64) string {
	return tenantID + "-audit-" + hex.EncodeToString([]byte{byte(seq >> 24), byte(seq >> 16), byte(seq >> 8), byte(seq)})
}

var _ Chain = (*PostgresChain)(nil)
