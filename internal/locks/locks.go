// Package locks serializes mutations per resource. Bookings on different
// resources proceed fully in parallel; waiters on the same resource are
// bounded by a timeout instead of queueing indefinitely.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when the per-resource lock cannot be acquired
// within the configured timeout. Transient; safe to retry with backoff.
var ErrBusy = errors.New("resource busy, retry later")

// ResourceLocks hands out one mutual-exclusion scope per resource ID.
type ResourceLocks struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

// New creates a lock set with the given acquisition timeout.
func New(timeout time.Duration) *ResourceLocks {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ResourceLocks{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *ResourceLocks) slot(resourceID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[resourceID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[resourceID] = ch
	}
	return ch
}

// Acquire takes the lock for resourceID, waiting at most the configured
// timeout. Returns ErrBusy on timeout and ctx.Err() on cancellation.
// The caller must Release after the index/record update.
func (l *ResourceLocks) Acquire(ctx context.Context, resourceID string) error {
	ch := l.slot(resourceID)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock without waiting.
func (l *ResourceLocks) TryAcquire(resourceID string) bool {
	select {
	case l.slot(resourceID) <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock for resourceID. Releasing an unheld lock is a
// programming error and panics.
func (l *ResourceLocks) Release(resourceID string) {
	select {
	case <-l.slot(resourceID):
	default:
		panic("locks: release of unheld lock for " + resourceID)
	}
}
