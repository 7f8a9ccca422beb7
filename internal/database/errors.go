package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes inspected by callers.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeDeadlockDetected    = "40P01"
	codeSerialization       = "40001"
)

// ErrorCode returns the SQLSTATE carried by a postgres error, or "".
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a postgres unique violation.
func IsUniqueViolation(err error) bool {
	return ErrorCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports whether err is a postgres foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return ErrorCode(err) == codeForeignKeyViolation
}

// IsRetryable reports whether a postgres error is a transient conflict
// (deadlock or serialization failure).
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case codeDeadlockDetected, codeSerialization:
		return true
	}
	return false
}

// Querier is the subset of *pgxpool.Pool used for server inspection.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ServerInfo describes the connected postgres server.
type ServerInfo struct {
	Database string
	Version  string
}

// Inspect reads the current database name and server version.
func Inspect(ctx context.Context, q Querier) (ServerInfo, error) {
	var info ServerInfo
	err := q.QueryRow(ctx, "SELECT current_database(), current_setting('server_version')").
		Scan(&info.Database, &info.Version)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("inspect database: %w", err)
	}
	return info, nil
}
