package ratelimit

import (
	"context"
	"time"
)

// CounterEntry is the per-key window state shared by every Store.
// ResetTime is always FirstRequestTime plus the window length in effect.
type CounterEntry struct {
	Count            int64
	ResetTime        time.Time
	FirstRequestTime time.Time
}

// Expired reports whether the window has ended at now.
// A request landing exactly on ResetTime belongs to the next window.
func (e CounterEntry) Expired(now time.Time) bool {
	return !now.Before(e.ResetTime)
}

// Counter is the outcome of an atomic increment.
type Counter struct {
	Count     int64
	ResetTime time.Time
}

// Store defines the interface for rate limit counter storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the live entry for key, or nil when it is absent or expired.
	Get(ctx context.Context, key string) (*CounterEntry, error)

	// Set overwrites the entry for key and keeps it for ttl.
	Set(ctx context.Context, key string, entry CounterEntry, ttl time.Duration) error

	// Increment counts one request against key. When no live entry exists a new
	// window of the given length starts with a count of 1. The read-check-write
	// must be atomic with respect to concurrent callers on the same key.
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
}

// Decrementer is implemented by stores that can roll back a single increment.
// Only the in-process store does; distributed decrement is not atomic with the
// increment it undoes and is left out.
type Decrementer interface {
	Decrement(ctx context.Context, key string) error
}
