package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// newMigrate builds a migrate instance. An empty path uses the migrations
// embedded in the binary; otherwise path is a source URL such as file:///x.
func newMigrate(db *sql.DB, path string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	var m *migrate.Migrate
	if path == "" {
		src, serr := iofs.New(migrationsFS, "migrations")
		if serr != nil {
			return nil, fmt.Errorf("failed to open embedded migrations: %w", serr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(path, "postgres", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies the embedded versioned migrations. It is idempotent.
//
// Migration files follow the naming convention:
//
//	000001_description.up.sql   - applies the migration
//	000001_description.down.sql - reverts the migration
func RunMigrations(db *sql.DB) error {
	return RunMigrationsFromPath(db, "")
}

// RunMigrationsFromPath runs migrations from a custom source URL.
// This is useful for testing with different migration directories.
func RunMigrationsFromPath(db *sql.DB, migrationsPath string) error {
	m, err := newMigrate(db, migrationsPath)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}

	slog.Info("migrations applied successfully",
		slog.Uint64("version", uint64(version)),
		slog.String("component", "db_migrate"))
	return nil
}

// MigrateDown rolls back the most recent migration.
// WARNING: this drops playlist data.
func MigrateDown(db *sql.DB) error {
	m, err := newMigrate(db, "")
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no migrations to roll back", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		// after rolling back everything Version reports ErrNilVersion
		slog.Info("rolled back to no migrations", slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d after rollback - manual intervention required", version)
	}

	slog.Info("migration rolled back successfully",
		slog.Uint64("version", uint64(version)),
		slog.String("component", "db_migrate"))
	return nil
}

// GetMigrationVersion returns the current migration version and dirty state.
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := newMigrate(db, "")
	if err != nil {
		return 0, false, err
	}
	v, d, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return v, d, nil
}

// Setup runs versioned migrations and falls back to the embedded idempotent
// SQL when the versioned path fails.
func Setup(db *sql.DB) error {
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := RunMigrations(db); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := Migrate(context.Background(), db); err != nil {
			return fmt.Errorf("migrate db (both versioned and embedded SQL failed): %w", err)
		}
	}
	return nil
}
