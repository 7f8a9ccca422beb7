package core

// cycle_limiter.go bounds how many poll cycles run at once across the
// process.
//
// Two callers share the slots. A poll pass queues its jobs with Wait, which
// blocks until a slot frees or the pass is cancelled, so every planned job is
// attempted. Interactive runs use Acquire, which gives up after maxWait with
// ErrTooManyCycles so an HTTP request is not held open indefinitely.
// WaitForDrain is used on shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyCycles is returned by Acquire when no slot frees within maxWait.
var ErrTooManyCycles = errors.New("too many cycles in progress, please try again later")

// DefaultMaxConcurrentCycles is the default limit for parallel cycles.
const DefaultMaxConcurrentCycles = 4

// DefaultMaxWaitTime bounds Acquire.
const DefaultMaxWaitTime = 30 * time.Second

// CycleLimiter is a counting semaphore over poll cycles.
type CycleLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
}

// NewCycleLimiter creates a limiter with maxConcurrent slots. Non-positive
// arguments select the defaults.
func NewCycleLimiter(maxConcurrent int, maxWait time.Duration) *CycleLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCycles
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &CycleLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Wait blocks until a slot is free or ctx is done. Callers must Release a
// slot obtained with Wait.
func (l *CycleLimiter) Wait(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.taken(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire is Wait bounded by maxWait. It returns ErrTooManyCycles when the
// bound expires and ctx's error when the caller gave up first.
func (l *CycleLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	err := l.Wait(waitCtx)
	if err != nil && ctx.Err() == nil {
		return ErrTooManyCycles
	}
	return err
}

// TryAcquire takes a slot only if one is free.
func (l *CycleLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.taken(1)
		return true
	default:
		return false
	}
}

// Release returns a slot.
func (l *CycleLimiter) Release() {
	l.taken(-1)
	<-l.slots
}

func (l *CycleLimiter) taken(delta int) {
	l.mu.Lock()
	l.active += delta
	l.mu.Unlock()
}

// ActiveCount returns the number of running cycles.
func (l *CycleLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the number of slots.
func (l *CycleLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *CycleLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no cycle is running or ctx is done.
func (l *CycleLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// CycleLimiterStatus is a snapshot of the limiter's state.
type CycleLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *CycleLimiter) Status() CycleLimiterStatus {
	return CycleLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
