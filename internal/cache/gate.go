// Package cache decides whether a resource needs fetching and keeps two
// cycles from fetching the same resource at once.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/evesync/internal/database"
)

// Gate combines the cached-until table with a single-flight Locker.
type Gate struct {
	db     *database.DB
	locker Locker
}

// NewGate creates a Gate.
func NewGate(db *database.DB, locker Locker) *Gate {
	return &Gate{db: db, locker: locker}
}

// Locker returns the lock backend.
func (g *Gate) Locker() Locker {
	return g.locker
}

// Expiry returns the committed expiry for the resource.
// found is false when no expiry has been committed yet.
func (g *Gate) Expiry(ctx context.Context, resourceKey string, ownerID int64) (expiry time.Time, found bool, err error) {
	query, args, err := g.db.Dialect.Builder().
		Select("cached_until").
		From("util_cached_until").
		Where(sq.Eq{"resource_key": resourceKey, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build cached until query: %w", err)
	}

	err = g.db.QueryRowContext(ctx, query, args...).Scan(&expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read cached until: %w", err)
	}
	return expiry, true, nil
}

// IsFresh reports whether a committed expiry exists and now is before it.
func (g *Gate) IsFresh(ctx context.Context, resourceKey string, ownerID int64, now time.Time) (bool, error) {
	expiry, found, err := g.Expiry(ctx, resourceKey, ownerID)
	if err != nil || !found {
		return false, err
	}
	return now.Before(expiry), nil
}

// CommitExpiry records when the resource may next be fetched.
func (g *Gate) CommitExpiry(ctx context.Context, resourceKey string, ownerID int64, expiry time.Time) error {
	query, args, err := g.db.Dialect.Builder().
		Insert("util_cached_until").
		Columns("resource_key", "owner_id", "cached_until").
		Values(resourceKey, ownerID, expiry.UTC()).
		Suffix("ON CONFLICT (resource_key, owner_id) DO UPDATE SET cached_until = EXCLUDED.cached_until").
		ToSql()
	if err != nil {
		return fmt.Errorf("build cached until upsert: %w", err)
	}

	if _, err := g.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("commit cached until: %w", err)
	}
	return nil
}

// TryAcquire attempts to take the single-flight lock without waiting.
func (g *Gate) TryAcquire(ctx context.Context, resourceKey string, ownerID int64) (bool, error) {
	return g.locker.Acquire(ctx, resourceKey, ownerID)
}

// Release drops the single-flight lock. Releasing a lock that is not held
// is a no-op.
func (g *Gate) Release(ctx context.Context, resourceKey string, ownerID int64) error {
	return g.locker.Release(ctx, resourceKey, ownerID)
}
