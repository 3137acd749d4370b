// AngelaMos | 2026
// migrate.go

package core

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending embedded migration and returns the schema
// version the database ends up at.
func (d *Database) Migrate() (uint, error) {
	driver, err := pgxmigrate.WithInstance(d.DB.DB, &pgxmigrate.Config{})
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	return version, nil
}

// SchemaVersion is the newest embedded migration.
const SchemaVersion uint = 2

// SchemaReady fails when the database has not been migrated to
// SchemaVersion or a previous migration was left dirty.
func (d *Database) SchemaReady(ctx context.Context) error {
	var (
		version uint
		dirty   bool
	)

	err := d.DB.QueryRowxContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).
		Scan(&version, &dirty)
	if err != nil {
		return StorageError("read schema version", err)
	}

	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	if version < SchemaVersion {
		return fmt.Errorf("%w: schema at version %d, want %d", ErrNotConfigured, version, SchemaVersion)
	}

	return nil
}
