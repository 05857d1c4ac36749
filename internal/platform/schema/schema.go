// Package schema applies the control plane's versioned DDL via
// golang-migrate. internal/routing/store.go's PostgresStore.EnsureSchema
// comment has long promised this ("migrations proper are handled by
// golang-migrate"); this package is that promise kept. Each Postgres-backed
// store's own EnsureSchema stays in place as the lab/dev bootstrap path for
// a bare database with no migrator in front of it — Migrate is the
// production path and is idempotent against a database EnsureSchema already
// initialized, since every migration file only uses CREATE ... IF NOT
// EXISTS / CREATE OR REPLACE statements.
package schema

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration in migrations/ against dsn,
// returning the resulting schema version. Running it twice against the same
// database is a no-op on the second call.
func Migrate(dsn string) (version uint, dirty bool, err error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("schema: load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("schema: open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("schema: apply migrations: %w", err)
	}

	return m.Version()
}
