// Package dbtest provides migrated SQLite databases for package tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/evesync/internal/database"
)

// New opens a fresh SQLite database under t.TempDir and applies every
// migration. The handle is closed when the test finishes.
func New(t testing.TB) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		Driver: database.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "evesync.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *database.DB, table string) int {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM "+database.QuoteIdent(table)).Scan(&n)
	require.NoError(t, err)
	return n
}
