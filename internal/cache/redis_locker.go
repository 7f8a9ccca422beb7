package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces lock keys.
const DefaultRedisPrefix = "evesync:lock:"

// RedisClient is the subset of the go-redis API used by RedisLocker.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// deleteIfUnchanged removes a lock only while it still holds the value that
// was read when deciding it is stale.
const deleteIfUnchanged = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker stores locks as plain keys without expiry. The value is
// "<holder>|<unix nanos>" so stale locks can be found and reclaimed.
type RedisLocker struct {
	client RedisClient
	prefix string
	holder string
	now    func() time.Time
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client RedisClient, holder string) *RedisLocker {
	if holder == "" {
		holder = NewHolderID()
	}
	return &RedisLocker{
		client: client,
		prefix: DefaultRedisPrefix,
		holder: holder,
		now:    time.Now,
	}
}

// Holder returns the identity written with every acquired lock.
func (l *RedisLocker) Holder() string {
	return l.holder
}

func (l *RedisLocker) key(resourceKey string, ownerID int64) string {
	return l.prefix + resourceKey + ":" + strconv.FormatInt(ownerID, 10)
}

func (l *RedisLocker) Acquire(ctx context.Context, resourceKey string, ownerID int64) (bool, error) {
	value := l.holder + "|" + strconv.FormatInt(l.now().UnixNano(), 10)
	ok, err := l.client.SetNX(ctx, l.key(resourceKey, ownerID), value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, resourceKey string, ownerID int64) error {
	if err := l.client.Del(ctx, l.key(resourceKey, ownerID)).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *RedisLocker) List(ctx context.Context) ([]Lock, error) {
	entries, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	locks := make([]Lock, 0, len(entries))
	for _, e := range entries {
		locks = append(locks, e.lock)
	}
	return locks, nil
}

func (l *RedisLocker) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := l.scan(ctx)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, e := range entries {
		if !e.lock.AcquiredAt.Before(olderThan) {
			continue
		}
		n, err := l.client.Eval(ctx, deleteIfUnchanged, []string{e.key}, e.value).Int()
		if err != nil {
			return reaped, fmt.Errorf("reap lock %s: %w", e.key, err)
		}
		reaped += n
	}
	return reaped, nil
}

type redisEntry struct {
	key   string
	value string
	lock  Lock
}

func (l *RedisLocker) scan(ctx context.Context) ([]redisEntry, error) {
	var (
		cursor  uint64
		entries []redisEntry
	)
	for {
		keys, next, err := l.client.Scan(ctx, cursor, l.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan locks: %w", err)
		}
		for _, k := range keys {
			value, err := l.client.Get(ctx, k).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read lock %s: %w", k, err)
			}
			lock, ok := l.parse(k, value)
			if !ok {
				continue
			}
			entries = append(entries, redisEntry{key: k, value: value, lock: lock})
		}
		cursor = next
		if cursor == 0 {
			return entries, nil
		}
	}
}

func (l *RedisLocker) parse(key, value string) (Lock, bool) {
	rest := strings.TrimPrefix(key, l.prefix)
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return Lock{}, false
	}
	owner, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return Lock{}, false
	}
	holder, ts, ok := strings.Cut(value, "|")
	if !ok {
		return Lock{}, false
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Lock{}, false
	}
	return Lock{
		ResourceKey: rest[:i],
		OwnerID:     owner,
		Holder:      holder,
		AcquiredAt:  time.Unix(0, nanos).UTC(),
	}, true
}
