package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by New when a Config cannot be used.
var ErrInvalidConfig = errors.New("invalid rate limiter config")

// KeyGenerator maps a caller supplied identifier to a counter key.
type KeyGenerator func(identifier string) string

// Config describes a single limiter. It is copied on construction and never
// mutated afterwards.
type Config struct {
	// Window is the fixed window length.
	Window time.Duration

	// MaxRequests is the number of requests allowed per window.
	MaxRequests int64

	// KeyGenerator derives the counter key. Defaults to the identity function.
	KeyGenerator KeyGenerator

	// SkipSuccessfulRequests rolls back the count when RecordResult reports success.
	SkipSuccessfulRequests bool

	// SkipFailedRequests rolls back the count when RecordResult reports failure.
	SkipFailedRequests bool

	// Prefix namespaces keys so limiters sharing a Store never collide.
	Prefix string

	// Store holds the counters. When nil the limiter creates and owns a MemoryStore.
	Store Store
}

// Validate reports whether the config can back a limiter.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}

	if c.MaxRequests < 1 {
		return fmt.Errorf("%w: max requests must be at least 1, got %d", ErrInvalidConfig, c.MaxRequests)
	}

	return nil
}

// Key returns the namespaced counter key for identifier.
func (c Config) Key(identifier string) string {
	key := identifier
	if c.KeyGenerator != nil {
		key = c.KeyGenerator(identifier)
	}

	if c.Prefix == "" {
		return key
	}

	return c.Prefix + ":" + key
}
