// Package database opens the relational store shared by every poll cycle.
//
// Both supported drivers are exposed through database/sql so that the
// storage code above this package is written once:
//   - postgres: a pgxpool.Pool wrapped with stdlib.OpenDBFromPool
//   - sqlite:   modernc.org/sqlite with a single writer connection
//
// Statements are built with squirrel; Dialect carries the placeholder
// format for the active driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// ParseDriver validates a configured driver name.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case DriverPostgres, "pgx", "postgresql":
		return DriverPostgres, nil
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unknown database driver: %q", s)
	}
}

// Dialect captures the SQL differences between drivers.
type Dialect struct {
	Driver Driver
}

// Placeholder returns the squirrel placeholder format for the driver.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d.Driver == DriverPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Builder returns a statement builder bound to the driver's placeholder format.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder())
}

// QuoteIdent quotes a table or column name. Both drivers accept ANSI quoting.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdents quotes every name in names.
func QuoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdent(n)
	}
	return out
}

// Options holds connection settings.
type Options struct {
	Driver          Driver
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DB is a database/sql handle plus the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect

	pool *pgxpool.Pool
}

// Pool returns the underlying pgx pool, or nil for sqlite.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Close closes the handle and, for postgres, the pool behind it.
func (d *DB) Close() error {
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Driver {
	case DriverPostgres:
		return openPostgres(ctx, opts)
	case DriverSQLite:
		return openSQLite(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown database driver: %q", opts.Driver)
	}
}

func openPostgres(ctx context.Context, opts Options) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{
		DB:      stdlib.OpenDBFromPool(pool),
		Dialect: Dialect{Driver: DriverPostgres},
		pool:    pool,
	}, nil
}

func openSQLite(ctx context.Context, opts Options) (*DB, error) {
	dsn := sqliteDSN(opts.URL)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &DB{
		DB:      db,
		Dialect: Dialect{Driver: DriverSQLite},
	}, nil
}

// sqliteDSN appends the pragmas every connection needs unless the caller
// already supplied query parameters.
func sqliteDSN(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	if strings.Contains(path, "?") {
		return "file:" + path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}
