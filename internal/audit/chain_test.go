package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestComputeHashIsDeterministicAndChains(t *testing.T) {
	payload := []byte(`{"action":"upsert"}`)

	first := computeHash(payload, "")
	again := computeHash(payload, "")
	if first != again {
		t.Error("computeHash() should be deterministic for the same inputs")
	}

	second := computeHash(payload, first)
	if second == first {
		t.Error("computeHash() with a different prev_hash should produce a different hash")
	}

	tampered := computeHash([]byte(`{"action":"delete"}`), "")
	if tampered == first {
		t.Error("computeHash() for a different payload should produce a different hash")
	}
}

func newMockChain(t *testing.T) (*PostgresChain, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() returned %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresChain(sqlx.NewDb(db, "postgres")), mock
}

func TestVerifyDetectsIntactChain(t *testing.T) {
	chain, mock := newMockChain(t)

	entryOnePayload := []byte(`{"seq":1}`)
	hashOne := computeHash(entryOnePayload, "")
	entryTwoPayload := []byte(`{"seq":2}`)
	hashTwo := computeHash(entryTwoPayload, hashOne)

	rows := sqlmock.NewRows([]string{"id", "payload", "prev_hash", "hash"}).
		AddRow("t_acme-audit-1", entryOnePayload, "", hashOne).
		AddRow("t_acme-audit-2", entryTwoPayload, hashOne, hashTwo)
	mock.ExpectQuery("SELECT id, payload, prev_hash, hash FROM audit_entries").
		WithArgs("t_acme").
		WillReturnRows(rows)

	result, err := chain.Verify(context.Background(), "t_acme")
	if err != nil {
		t.Fatalf("Verify() returned %v", err)
	}
	if !result.OK || result.EntriesChecked != 2 {
		t.Errorf("Verify() = %+v, want an intact two-entry chain", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	chain, mock := newMockChain(t)

	entryOnePayload := []byte(`{"seq":1}`)
	hashOne := computeHash(entryOnePayload, "")

	// The second row's hash does not match a recomputation over its own
	// payload and prev_hash, simulating a tampered entry.
	rows := sqlmock.NewRows([]string{"id", "payload", "prev_hash", "hash"}).
		AddRow("t_acme-audit-1", entryOnePayload, "", hashOne).
		AddRow("t_acme-audit-2", []byte(`{"seq":2}`), hashOne, "tampered-hash")
	mock.ExpectQuery("SELECT id, payload, prev_hash, hash FROM audit_entries").
		WithArgs("t_acme").
		WillReturnRows(rows)

	result, err := chain.Verify(context.Background(), "t_acme")
	if err != nil {
		t.Fatalf("Verify() returned %v", err)
	}
	if result.OK {
		t.Fatal("Verify() should flag the tampered entry, not report OK")
	}
	if result.FirstBadEntryID != "t_acme-audit-2" {
		t.Errorf("FirstBadEntryID = %q, want %q", result.FirstBadEntryID, "t_acme-audit-2")
	}
}
