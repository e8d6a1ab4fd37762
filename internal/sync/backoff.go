// Package sync implements the background sync engine: it drains the
// durable queue, submits batches to the backend, schedules retries with
// exponential backoff, and merges divergent session state from other
// devices.
package sync

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff jitter bounds.
const jitterFraction = 0.20

// Backoff computes retry schedules: exponential growth from Base, capped
// at Max, with ±20% uniform jitter so a fleet of clients recovering from
// the same outage does not stampede the backend.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// randFloat returns a value in [0, 1). Defaults to math/rand.
	// Tests override it for determinism.
	randFloat func() float64
}

// NewBackoff creates a Backoff with the given bounds.
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max, randFloat: rand.Float64}
}

// Delay returns the jittered wait before retry number attempt (zero-based:
// attempt 0 is the wait after the first failure).
func (b *Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	rf := b.randFloat
	if rf == nil {
		rf = rand.Float64
	}

	jitter := d * jitterFraction * (rf()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	d += jitter

	return time.Duration(d)
}

// NextEligible returns the Unix-nanosecond time at which a failed item
// becomes eligible again. A server-supplied retryAfter takes precedence
// when it is longer than the computed delay; the server's word on its own
// recovery beats our guess.
func (b *Backoff) NextEligible(now int64, attempt int, retryAfter time.Duration) int64 {
	delay := b.Delay(attempt)
	if retryAfter > delay {
		delay = retryAfter
	}

	return now + int64(delay)
}
