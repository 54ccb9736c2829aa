// Package backoff implements the exponential-with-jitter back-off schedule
// used by the ranking publisher's enqueue retry loop. Blob fetches retry
// through go-retryablehttp's own back-off; simulator calls and store writes
// are not retried.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Exponential is a doubling back-off schedule, capped at max, with up to
// jitter of additional random delay on each call. It is safe for concurrent
// use; each caller's schedule is independent once constructed, but NextDuration
// itself is guarded so a single Exponential can be shared if desired.
type Exponential struct {
	min    time.Duration
	max    time.Duration
	jitter time.Duration

	mu   sync.Mutex
	next time.Duration
}

// NewExponential returns a schedule that starts at min and doubles on every
// call to NextDuration, never exceeding max. If min > max, every call
// returns max. A non-zero jitter adds a uniform random duration in
// [0, jitter) on top of the computed value.
func NewExponential(min, max, jitter time.Duration) *Exponential {
	if min > max {
		min = max
	}
	return &Exponential{min: min, max: max, jitter: jitter, next: min}
}

// NextDuration returns the next delay in the schedule and advances it.
func (e *Exponential) NextDuration() time.Duration {
	e.mu.Lock()
	d := e.next
	if d > e.max {
		d = e.max
	}
	doubled := e.next * 2
	if doubled < e.next || doubled > e.max {
		// overflow or cap reached: pin at max for all subsequent calls.
		e.next = e.max
	} else {
		e.next = doubled
	}
	e.mu.Unlock()

	if e.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(e.jitter)))
	}
	return d
}

// Reset restarts the schedule at min.
func (e *Exponential) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next = e.min
}
