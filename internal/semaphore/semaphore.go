// Package semaphore provides a counted permit primitive with a FIFO wait
// queue and dynamic resizing, the bottom layer of the concurrency manager
// (internal/concurrency). Priority ordering of waiters is not this
// package's concern — the concurrency manager itself decides which task
// to hand the next released permit to, via internal/pqueue; this
// semaphore only ever serves its own waiters in the order they arrived.
package semaphore

import (
	"errors"
	"sync"
)

// ErrInvalidCapacity is returned by New when n <= 0.
var ErrInvalidCapacity = errors.New("semaphore: capacity must be >= 1")

// waiter is a single pending Acquire call.
type waiter struct {
	ready chan struct{}
}

// Semaphore bounds the number of concurrent permit holders. Waiters are
// served in FIFO order; releasing a permit hands it directly to the
// longest-waiting waiter instead of incrementing the available count,
// so acquire-then-release pairs cannot starve an existing waiter.
type Semaphore struct {
	mu        sync.Mutex
	capacity  int
	available int
	waiters   []*waiter
}

// New creates a Semaphore with n initial permits. n must be >= 1.
func New(n int) (*Semaphore, error) {
	if n <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Semaphore{capacity: n, available: n}, nil
}

// Lease represents one held permit. Release is idempotent: only the
// first call against a given Lease has any effect.
type Lease struct {
	s        *Semaphore
	released bool
	mu       sync.Mutex
}

// Acquire returns a Lease immediately if a permit is available, otherwise
// blocks until one is released to this waiter. The wait cannot be
// abandoned; there is no context or timeout.
func (s *Semaphore) Acquire() *Lease {
	s.mu.Lock()
	if s.available > 0 {
		s.available--
		s.mu.Unlock()
		return &Lease{s: s}
	}

	w := &waiter{ready: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	<-w.ready
	return &Lease{s: s}
}

// TryAcquire returns a Lease and true if a permit was immediately
// available, without waiting.
func (s *Semaphore) TryAcquire() (*Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available <= 0 {
		return nil, false
	}
	s.available--
	return &Lease{s: s}, true
}

// Release returns the permit. Calling Release more than once on the same
// Lease is a no-op after the first call.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()
	l.s.release()
}

func (s *Semaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(w.ready)
		return
	}
	s.available++
}

// UpdatePermits resizes the semaphore's capacity. n must be >= 1.
//
// Growing (n > capacity) immediately increases available by the
// difference and wakes up to that many waiters. Shrinking (n < capacity)
// only reduces capacity — current holders are never preempted, so the
// effective available count may transiently go negative; new Acquire
// calls simply block until enough releases have drained the overage.
func (s *Semaphore) UpdatePermits(n int) error {
	if n <= 0 {
		return ErrInvalidCapacity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	diff := n - s.capacity
	s.capacity = n
	if diff <= 0 {
		s.available += diff
		return nil
	}

	s.available += diff
	for s.available > 0 && len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.available--
		close(w.ready)
	}
	return nil
}

// Capacity returns the current configured capacity.
func (s *Semaphore) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Available returns the current available permit count (may be negative
// transiently after a shrink).
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Held returns the number of permits currently checked out.
func (s *Semaphore) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.available
}

// NumWaiters returns the number of goroutines currently blocked in Acquire.
func (s *Semaphore) NumWaiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}
