package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema at dsn up to date. It opens its own
// connection because the migrate driver closes the handle it is given.
func RunMigrations(dialect Dialect, dsn string) error {
	migrateDB, err := openDB(dialect, dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, dbName, err := migrationDriver(dialect, migrateDB)
	if err != nil {
		return err
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("locate %s migrations: %w", dialect, err)
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, dbName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func migrationDriver(dialect Dialect, db *sql.DB) (database.Driver, string, error) {
	switch dialect {
	case DialectSQLite:
		driver, err := sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return nil, "", fmt.Errorf("create sqlite driver: %w", err)
		}
		return driver, "sqlite", nil
	case DialectPostgres:
		driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			return nil, "", fmt.Errorf("create pgx driver: %w", err)
		}
		return driver, "pgx5", nil
	default:
		return nil, "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}
