package ratelimit

import (
	"context"
	"math"
	"time"
)

// Backoff computes progressive delays for repeated failures, doubling from
// Base and capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is used for failed authentication attempts.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

// Delay returns the wait before attempt. Attempts start at 1; anything lower
// waits nothing.
func (b Backoff) Delay(attempt int64) time.Duration {
	if attempt <= 0 || b.Base <= 0 {
		return 0
	}

	d := b.Base
	for i := int64(1); i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64

			break
		}

		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}

	return d
}

// Wait blocks for Delay(attempt) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int64) error {
	d := b.Delay(attempt)
	if d == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
