package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lock describes one held single-flight lock.
type Lock struct {
	ResourceKey string    `json:"resource_key"`
	OwnerID     int64     `json:"owner_id"`
	Holder      string    `json:"holder"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// Locker provides non-blocking mutual exclusion per (resource key, owner).
//
// Locks carry no timeout. They are released by Release or, after the holder
// died, reclaimed by ReapStale.
type Locker interface {
	// Acquire reports whether the lock was taken. It never waits.
	Acquire(ctx context.Context, resourceKey string, ownerID int64) (bool, error)
	// Release removes the lock whoever holds it.
	Release(ctx context.Context, resourceKey string, ownerID int64) error
	// List returns every held lock.
	List(ctx context.Context) ([]Lock, error)
	// ReapStale removes locks acquired before olderThan.
	ReapStale(ctx context.Context, olderThan time.Time) (int, error)
}

// Backend names a Locker implementation.
type Backend string

const (
	BackendSQL   Backend = "sql"
	BackendRedis Backend = "redis"
)

// ParseBackend validates a configured lock backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendSQL, BackendRedis:
		return b, nil
	default:
		return "", fmt.Errorf("unknown lock backend: %q", s)
	}
}

// NewHolderID returns an identity for this process's locks.
func NewHolderID() string {
	return uuid.NewString()
}
