package database

import (
	"embed"
	"errors"
	"fmt"

	"certificate-workers/internal/common/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationSource opens the embedded ledger migrations.
func MigrationSource() (source.Driver, error) {
	return iofs.New(migrationsFS, "migrations")
}

// Migrate brings the ledger schema up to the latest embedded migration and
// returns the resulting version. It connects on its own and closes that
// connection before returning.
func Migrate(cfg config.PostgresConfig) (uint, error) {
	src, err := MigrationSource()
	if err != nil {
		return 0, fmt.Errorf("open ledger migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.GetURL())
	if err != nil {
		return 0, fmt.Errorf("init ledger migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply ledger migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read ledger schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("ledger schema version %d is dirty", version)
	}
	return version, nil
}
