// Package migration applies the versioned SQL files under migrations/ with
// golang-migrate and scaffolds new ones.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// migrationsTable keeps the fee schema version apart from other tools
// sharing the database
const migrationsTable = "feesettle_schema_migrations"

// Migrator applies the fee schema migrations to PostgreSQL
type Migrator struct {
	migrate *migrate.Migrate
	dir     string
	logger  *zap.Logger
}

// Status is the schema version plus the files not yet applied
type Status struct {
	Version uint
	Dirty   bool
	Pending []Entry
}

// New creates a Migrator over an open PostgreSQL connection
func New(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations in %s: %w", dir, err)
	}

	return &Migrator{migrate: m, dir: dir, logger: logger}, nil
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	m.logger.Info("Applying fee schema migrations")

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Fee schema is up to date")
			return nil
		}
		return fmt.Errorf("migration up failed: %w", err)
	}
	return m.logVersion("Fee schema migrated")
}

// Rollback reverts the last n migrations
func (m *Migrator) Rollback(n int) error {
	if n <= 0 {
		return fmt.Errorf("rollback needs a positive step count, got %d", n)
	}
	m.logger.Info("Rolling back fee schema migrations", zap.Int("steps", n))

	if err := m.migrate.Steps(-n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Nothing to roll back")
			return nil
		}
		return fmt.Errorf("rollback of %d steps failed: %w", n, err)
	}
	return m.logVersion("Fee schema rolled back")
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(version uint) error {
	m.logger.Info("Migrating fee schema", zap.Uint("target_version", version))

	if err := m.migrate.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return m.logVersion("Fee schema migrated")
}

// Status reports the applied version and the migrations after it
func (m *Migrator) Status() (Status, error) {
	var st Status
	version, dirty, err := m.migrate.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return st, fmt.Errorf("failed to read schema version: %w", err)
	default:
		st.Version, st.Dirty = version, dirty
	}

	entries, err := ListMigrations(m.dir)
	if err != nil {
		return st, err
	}
	for _, e := range entries {
		if e.Version > uint64(st.Version) {
			st.Pending = append(st.Pending, e)
		}
	}
	return st, nil
}

// Force records version as applied without running anything. It is the way
// out of a dirty state after a failed migration was repaired by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing fee schema version", zap.Int("version", version))

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

func (m *Migrator) logVersion(msg string) error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	m.logger.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
