package crawler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultBrowserLimit bounds concurrent browser instances across the process
const DefaultBrowserLimit = 5

// LaunchLimiter is a counting semaphore shared by all crawl sessions in
// the process. Every acquired permit must be released on every exit
// path, including browser launch failure, or the slot is leaked for the
// lifetime of the process. Waiters are served in FIFO order.
type LaunchLimiter struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

// NewLaunchLimiter creates a limiter with the given capacity.
// Non-positive capacities fall back to DefaultBrowserLimit.
func NewLaunchLimiter(capacity int) *LaunchLimiter {
	if capacity < 1 {
		capacity = DefaultBrowserLimit
	}
	return &LaunchLimiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a browser slot is free or the context is
// cancelled. Returns the context error on cancellation.
func (l *LaunchLimiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inUse.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking, reporting whether it succeeded.
func (l *LaunchLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inUse.Add(1)
	return true
}

// Release frees one slot, handing it to the longest-waiting caller if
// any are blocked in Acquire.
func (l *LaunchLimiter) Release() {
	l.inUse.Add(-1)
	l.sem.Release(1)
}

// Capacity returns the configured slot count.
func (l *LaunchLimiter) Capacity() int {
	return l.capacity
}

// InUse returns the number of currently held slots.
func (l *LaunchLimiter) InUse() int {
	return int(l.inUse.Load())
}
