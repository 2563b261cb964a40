// Package database provides the PostgreSQL schema and its migration tooling.
package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// NewMigrator returns a migration instance for the given postgres:// connection string.
func NewMigrator(connString string) (Migrator, error) {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, toMigrateURL(connString))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies pending migrations. steps == 0 applies all of them.
func MigrateUp(connString string, steps uint) error {
	return run(connString, func(m Migrator) error {
		if steps == 0 {
			return m.Up()
		}
		return m.Steps(int(steps))
	})
}

// MigrateDown reverts migrations. steps == 0 reverts all of them.
func MigrateDown(connString string, steps uint) error {
	return run(connString, func(m Migrator) error {
		if steps == 0 {
			return m.Down()
		}
		return m.Steps(-int(steps))
	})
}

// GetVersion returns the current schema version and whether it is dirty.
func GetVersion(connString string) (uint, bool, error) {
	m, err := NewMigrator(connString)
	if err != nil {
		return 0, false, err
	}
	defer m.Close() //nolint:errcheck // read-only use

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func run(connString string, fn func(Migrator) error) error {
	m, err := NewMigrator(connString)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // errors surface through fn

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// toMigrateURL maps postgres:// and postgresql:// URLs onto the pgx5 driver scheme.
func toMigrateURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}
