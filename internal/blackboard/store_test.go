package blackboard

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() returned %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestWriteCreatesAtVersionOneWhenAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version, created_by, created_at FROM blackboard_entries").
		WithArgs("thread_1", "summary").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_by", "created_at"}))
	mock.ExpectExec("INSERT INTO blackboard_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := store.Write(context.Background(), "thread_1", "summary", []byte("hello"), nil, "agent_1")
	if err != nil {
		t.Fatalf("Write() returned %v", err)
	}
	if entry.Version != 1 {
		t.Errorf("Write() created version %d, want 1", entry.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestWriteConflictOnStaleExpectedVersion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version, created_by, created_at FROM blackboard_entries").
		WithArgs("thread_1", "summary").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_by", "created_at"}).
			AddRow(int64(3), "agent_1", nil))
	mock.ExpectRollback()

	stale := int64(2)
	_, err := store.Write(context.Background(), "thread_1", "summary", []byte("hello"), &stale, "agent_2")
	if err == nil {
		t.Fatal("Write() with a stale expected_version should return version_conflict")
	}
}

func TestWriteSucceedsOnMatchingExpectedVersion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version, created_by, created_at FROM blackboard_entries").
		WithArgs("thread_1", "summary").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_by", "created_at"}).
			AddRow(int64(3), "agent_1", nil))
	mock.ExpectExec("INSERT INTO blackboard_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	current := int64(3)
	entry, err := store.Write(context.Background(), "thread_1", "summary", []byte("hello"), &current, "agent_2")
	if err != nil {
		t.Fatalf("Write() returned %v", err)
	}
	if entry.Version != 4 {
		t.Errorf("Write() produced version %d, want 4", entry.Version)
	}
}

func TestReadMissingKeyReturnsFoundFalse(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT stream_key, key, version, value, created_by, created_at, updated_by, updated_at").
		WillReturnRows(sqlmock.NewRows([]string{
			"stream_key", "key", "version", "value", "created_by", "created_at", "updated_by", "updated_at",
		}))

	_, found, err := store.Read(context.Background(), "thread_1", "missing", nil)
	if err != nil {
		t.Fatalf("Read() returned %v", err)
	}
	if found {
		t.Error("Read() for a missing key should report found=false, not an error")
	}
}
