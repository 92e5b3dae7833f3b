package database

import (
	"errors"
	"fmt"
	"log/slog"

	"go-batchd/migrations"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// NewMigrator builds a migrate instance over the embedded SQL migrations
// for the configured driver. The caller owns the returned instance.
func NewMigrator(s *SQL) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, s.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	switch s.Driver {
	case DriverMySQL:
		drv, err := migratemysql.WithInstance(s.DB.DB, &migratemysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init mysql migration driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, "mysql", drv)
	case DriverPostgres:
		drv, err := migratepgx.WithInstance(s.DB.DB, &migratepgx.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres migration driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, "postgres", drv)
	default:
		return nil, fmt.Errorf("no migrations for driver %q", s.Driver)
	}
}

// RunMigrations applies the embedded SQL migrations for the configured
// driver. Already-applied migrations are skipped.
func RunMigrations(s *SQL) error {
	m, err := NewMigrator(s)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}

	slog.Info("Database migrations applied", "version", version, "dirty", dirty, "driver", s.Driver)
	return nil
}
