package cache

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/evesync/internal/database"
)

// SQLLocker stores locks as rows of util_api_lock.
type SQLLocker struct {
	db     *database.DB
	holder string
	now    func() time.Time
}

// NewSQLLocker creates a SQLLocker whose locks are tagged with holder.
func NewSQLLocker(db *database.DB, holder string) *SQLLocker {
	if holder == "" {
		holder = NewHolderID()
	}
	return &SQLLocker{db: db, holder: holder, now: time.Now}
}

// Holder returns the identity written with every acquired lock.
func (l *SQLLocker) Holder() string {
	return l.holder
}

func (l *SQLLocker) Acquire(ctx context.Context, resourceKey string, ownerID int64) (bool, error) {
	query, args, err := l.db.Dialect.Builder().
		Insert("util_api_lock").
		Columns("resource_key", "owner_id", "holder", "acquired_at").
		Values(resourceKey, ownerID, l.holder, l.now().UTC()).
		Suffix("ON CONFLICT (resource_key, owner_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build lock insert: %w", err)
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return n == 1, nil
}

func (l *SQLLocker) Release(ctx context.Context, resourceKey string, ownerID int64) error {
	query, args, err := l.db.Dialect.Builder().
		Delete("util_api_lock").
		Where(sq.Eq{"resource_key": resourceKey, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock delete: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *SQLLocker) List(ctx context.Context) ([]Lock, error) {
	query, args, err := l.db.Dialect.Builder().
		Select("resource_key", "owner_id", "holder", "acquired_at").
		From("util_api_lock").
		OrderBy("acquired_at", "resource_key", "owner_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock list: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var locks []Lock
	for rows.Next() {
		var lk Lock
		if err := rows.Scan(&lk.ResourceKey, &lk.OwnerID, &lk.Holder, &lk.AcquiredAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		locks = append(locks, lk)
	}
	return locks, rows.Err()
}

// ReapStale deletes locks older than olderThan. A lock is deleted only while
// the holder that was listed still owns it.
func (l *SQLLocker) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	locks, err := l.List(ctx)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, lk := range locks {
		if !lk.AcquiredAt.Before(olderThan) {
			continue
		}
		query, args, err := l.db.Dialect.Builder().
			Delete("util_api_lock").
			Where(sq.Eq{
				"resource_key": lk.ResourceKey,
				"owner_id":     lk.OwnerID,
				"holder":       lk.Holder,
			}).
			ToSql()
		if err != nil {
			return reaped, fmt.Errorf("build stale lock delete: %w", err)
		}
		res, err := l.db.ExecContext(ctx, query, args...)
		if err != nil {
			return reaped, fmt.Errorf("reap lock %s/%d: %w", lk.ResourceKey, lk.OwnerID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			reaped++
		}
	}
	return reaped, nil
}
