package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

// Migrate applies all pending up migrations from the embedded source.
// ErrNoChange is not an error; an already-current schema is the normal case.
func Migrate(dsn string, source fs.FS) error {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("platform/db: open migration connection: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if err := conn.Ping(); err != nil {
		return fmt.Errorf("platform/db: ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("platform/db: migration driver: %w", err)
	}
	src, err := iofs.New(source, ".")
	if err != nil {
		return fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("platform/db: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: apply migrations: %w", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("platform/db: close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("platform/db: close migration database: %w", dbErr)
	}
	return nil
}
