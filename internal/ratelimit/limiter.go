// Package ratelimit implements fixed-window admission control keyed by an
// opaque client identifier. Keys arrive already hashed; this package never
// sees a raw identity. The window resets at fixed boundaries, so a burst
// straddling a boundary can briefly admit up to twice the limit — accepted,
// in exchange for O(1) state per key.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check, surfaced to clients as
// X-RateLimit-* headers. ResetAt is an absolute instant so clients compute
// their own wait.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a denied caller should wait before the window
// opens again, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Store is the admission counter. The in-process implementation serializes
// increments with a lock; the redis implementation relies on atomic INCR.
// Swapping one for the other never touches call sites.
type Store interface {
	// Check reports the current admission status without charging a slot.
	Check(ctx context.Context, key string) (Decision, error)

	// Increment charges a slot and decides admission. A denied request still
	// costs a slot: probing past the limit is never free.
	Increment(ctx context.Context, key string) (Decision, error)

	// Reset clears a key's window immediately. Administrative use only.
	Reset(ctx context.Context, key string) error
}
