package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of simultaneous extractions allowed when no
// capacity is configured.
const DefaultCapacity = 4

// Limiter is a counting semaphore that bounds how many page-extraction
// operations run at the same time. Callers that cannot be served immediately
// are queued and granted in the order they arrived.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New creates a Limiter with the given capacity
func New(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is available or ctx is done.
// Every successful Acquire must be paired with exactly one Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.waiting.Add(1)
	err := l.sem.Acquire(ctx, 1)
	l.waiting.Add(-1)
	if err != nil {
		return err
	}
	l.inFlight.Add(1)
	return nil
}

// TryAcquire grants a slot only if one is free and nobody is queued.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inFlight.Add(1)
	return true
}

// Release returns one slot and wakes the oldest waiter, if any.
// It panics when called more times than Acquire succeeded.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// Capacity returns the maximum number of concurrent grants
func (l *Limiter) Capacity() int {
	return l.capacity
}

// InFlight returns the number of grants currently held
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Waiting returns the number of callers blocked in Acquire
func (l *Limiter) Waiting() int {
	return int(l.waiting.Load())
}
