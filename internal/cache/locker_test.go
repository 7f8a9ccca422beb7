package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/evesync/internal/database/dbtest"
)

// lockerFactory returns a Locker plus a hook that moves its clock.
type lockerFactory func(t *testing.T) (Locker, func(time.Time))

func sqlLockerFactory(t *testing.T) (Locker, func(time.Time)) {
	l := NewSQLLocker(dbtest.New(t), "holder-a")
	return l, func(now time.Time) { l.now = func() time.Time { return now } }
}

func redisLockerFactory(t *testing.T) (Locker, func(time.Time)) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, "holder-a")
	return l, func(now time.Time) { l.now = func() time.Time { return now } }
}

func TestLockers(t *testing.T) {
	factories := map[string]lockerFactory{
		"sql":   sqlLockerFactory,
		"redis": redisLockerFactory,
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			testLockerContract(t, factory)
		})
	}
}

func testLockerContract(t *testing.T, factory lockerFactory) {
	ctx := context.Background()

	t.Run("Should grant exactly one holder", func(t *testing.T) {
		l, _ := factory(t)

		ok, err := l.Acquire(ctx, "res", 1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Acquire(ctx, "res", 1)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = l.Acquire(ctx, "res", 2)
		require.NoError(t, err)
		assert.True(t, ok, "different owner is a different lock")
	})

	t.Run("Should allow re-acquire after release", func(t *testing.T) {
		l, _ := factory(t)

		require.NoError(t, l.Release(ctx, "res", 1), "release without acquire")

		ok, err := l.Acquire(ctx, "res", 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.Release(ctx, "res", 1))

		ok, err = l.Acquire(ctx, "res", 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should never grant two concurrent acquisitions", func(t *testing.T) {
		l, _ := factory(t)

		var (
			wg      sync.WaitGroup
			granted atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.Acquire(ctx, "contended", 7)
				if err == nil && ok {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), granted.Load())
	})

	t.Run("Should list and reap stale locks", func(t *testing.T) {
		l, setNow := factory(t)
		old := time.Date(2011, 4, 1, 12, 0, 0, 0, time.UTC)

		setNow(old)
		ok, err := l.Acquire(ctx, "stale", 1)
		require.NoError(t, err)
		require.True(t, ok)

		setNow(old.Add(time.Hour))
		ok, err = l.Acquire(ctx, "recent", 1)
		require.NoError(t, err)
		require.True(t, ok)

		locks, err := l.List(ctx)
		require.NoError(t, err)
		require.Len(t, locks, 2)
		for _, lk := range locks {
			assert.Equal(t, "holder-a", lk.Holder)
			assert.Equal(t, int64(1), lk.OwnerID)
		}

		reaped, err := l.ReapStale(ctx, old.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)

		locks, err = l.List(ctx)
		require.NoError(t, err)
		require.Len(t, locks, 1)
		assert.Equal(t, "recent", locks[0].ResourceKey)

		ok, err = l.Acquire(ctx, "stale", 1)
		require.NoError(t, err)
		assert.True(t, ok, "reaped lock can be taken again")
	})
}

func TestRedisLocker_IgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set(DefaultRedisPrefix+"garbage", "not-a-lock"))
	require.NoError(t, mr.Set("other:key", "x"))

	l := NewRedisLocker(client, "")
	assert.NotEmpty(t, l.Holder())

	locks, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)

	reaped, err := l.ReapStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, reaped)
	assert.True(t, mr.Exists("other:key"))
}

func TestReapOnce(t *testing.T) {
	ctx := context.Background()
	l, setNow := sqlLockerFactory(t)
	now := time.Date(2011, 4, 1, 12, 0, 0, 0, time.UTC)

	setNow(now.Add(-time.Hour))
	_, err := l.Acquire(ctx, "orphan", 1)
	require.NoError(t, err)

	assert.Equal(t, 0, ReapOnce(ctx, l, 2*time.Hour, now))
	assert.Equal(t, 1, ReapOnce(ctx, l, 15*time.Minute, now))
}

func TestStartReaper_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, _ := sqlLockerFactory(t)

	done := make(chan struct{})
	go func() {
		StartReaper(ctx, l, ReaperConfig{Interval: 10 * time.Millisecond})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
