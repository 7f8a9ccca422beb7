package database

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

const migrationLockTimeout = 45 * time.Second

// Migrate applies the embedded migrations for the handle's dialect.
// On postgres the run is serialised across processes with an advisory lock.
func Migrate(ctx context.Context, db *DB) error {
	switch db.Dialect.Driver {
	case DriverPostgres:
		return migratePostgres(ctx, db)
	case DriverSQLite:
		return runMigrations(ctx, db, "sqlite3", "migrations/sqlite")
	default:
		return fmt.Errorf("unknown database driver: %q", db.Dialect.Driver)
	}
}

func migratePostgres(ctx context.Context, db *DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx,
		"SELECT pg_advisory_lock(hashtext($1), hashtext($2))", "evesync", "migrations"); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx),
			"SELECT pg_advisory_unlock(hashtext($1), hashtext($2))", "evesync", "migrations"); err != nil {
			slog.Warn("failed to release migration advisory lock", "error", err)
		}
	}()

	return runMigrations(ctx, db, "postgres", "migrations/postgres")
}

func runMigrations(ctx context.Context, db *DB, dialect, dir string) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Version returns the currently applied migration version.
func Version(ctx context.Context, db *DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect := "sqlite3"
	if db.Dialect.Driver == DriverPostgres {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return v, nil
}
