package ratelimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/serroba/ratelimit-guard/internal/ratelimit"

// Result is the decision returned by CheckLimit.
type Result struct {
	Allowed       bool
	Limit         int64
	Remaining     int64
	ResetTime     time.Time
	TotalRequests int64
}

// RetryAfter returns the whole seconds a denied caller should wait, rounded up.
func (r Result) RetryAfter(now time.Time) int64 {
	if !now.Before(r.ResetTime) {
		return 0
	}

	d := r.ResetTime.Sub(now)

	return int64((d + time.Second - 1) / time.Second)
}

// Status is a read-only view of a live counter.
type Status struct {
	Limit         int64
	Remaining     int64
	ResetTime     time.Time
	TotalRequests int64
}

// RateLimiter enforces a fixed window limit for one use case.
type RateLimiter struct {
	cfg   Config
	store Store
	owned *MemoryStore

	logger          *zap.Logger
	timeout         time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	tracer          trace.Tracer
	metrics         *metrics
}

// New validates cfg and builds a limiter. When cfg.Store is nil the limiter
// owns a private MemoryStore which Destroy shuts down.
func New(cfg Config, opts ...Option) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &RateLimiter{
		cfg:             cfg,
		store:           cfg.Store,
		logger:          zap.NewNop(),
		timeout:         DefaultStoreTimeout,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		tracer:          otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.store == nil {
		l.owned = NewMemoryStore(
			WithMemoryClock(l.now),
			WithMemoryLogger(l.logger),
			WithCleanupInterval(l.cleanupInterval),
		)
		l.store = l.owned
	}

	return l, nil
}

// Name returns the key prefix, which doubles as the limiter's label.
func (l *RateLimiter) Name() string {
	return l.cfg.Prefix
}

// Config returns a copy of the limiter configuration.
func (l *RateLimiter) Config() Config {
	return l.cfg
}

// CheckLimit consumes one unit of quota for identifier and reports whether the
// request fits in the current window. Denied calls are counted too.
//
// Store failures and timeouts never surface: the call fails open with a
// synthetic first-request result.
func (l *RateLimiter) CheckLimit(ctx context.Context, identifier string) Result {
	key := l.cfg.Key(identifier)

	ctx, span := l.tracer.Start(ctx, "ratelimit.CheckLimit", trace.WithAttributes(
		attribute.String("ratelimit.limiter", l.cfg.Prefix),
		attribute.Int64("ratelimit.limit", l.cfg.MaxRequests),
		attribute.Int64("ratelimit.window_ms", l.cfg.Window.Milliseconds()),
	))
	defer span.End()

	// An aborted request must not abort an increment that is already in flight.
	counter, err := callWithTimeout(context.WithoutCancel(ctx), l.timeout,
		func(ctx context.Context) (Counter, error) {
			return l.store.Increment(ctx, key, l.cfg.Window)
		})
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			zap.String("limiter", l.cfg.Prefix),
			zap.Error(err),
		)
		l.metrics.observeFailOpen(l.cfg.Prefix)
		span.RecordError(err)

		counter = Counter{Count: 1, ResetTime: l.now().Add(l.cfg.Window)}
	}

	result := Result{
		Allowed:       counter.Count <= l.cfg.MaxRequests,
		Limit:         l.cfg.MaxRequests,
		Remaining:     max(0, l.cfg.MaxRequests-counter.Count),
		ResetTime:     counter.ResetTime,
		TotalRequests: counter.Count,
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", result.Allowed),
		attribute.Int64("ratelimit.total", result.TotalRequests),
	)
	l.metrics.observe(l.cfg.Prefix, result.Allowed)

	return result
}

// RecordResult rolls back the increment of a finished request when the config
// says requests with that outcome do not count. Stores without Decrementer
// ignore the rollback.
func (l *RateLimiter) RecordResult(ctx context.Context, identifier string, success bool) error {
	skip := (success && l.cfg.SkipSuccessfulRequests) || (!success && l.cfg.SkipFailedRequests)
	if !skip {
		return nil
	}

	dec, ok := l.store.(Decrementer)
	if !ok {
		l.logger.Debug("store cannot decrement, result not rolled back",
			zap.String("limiter", l.cfg.Prefix),
		)

		return nil
	}

	key := l.cfg.Key(identifier)

	_, err := callWithTimeout(ctx, l.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, dec.Decrement(ctx, key)
	})

	return err
}

// GetStatus peeks at the counter without consuming quota. It returns nil when
// identifier has no live window.
func (l *RateLimiter) GetStatus(ctx context.Context, identifier string) (*Status, error) {
	key := l.cfg.Key(identifier)

	entry, err := callWithTimeout(ctx, l.timeout, func(ctx context.Context) (*CounterEntry, error) {
		return l.store.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	if entry == nil || entry.Expired(l.now()) {
		return nil, nil
	}

	return &Status{
		Limit:         l.cfg.MaxRequests,
		Remaining:     max(0, l.cfg.MaxRequests-entry.Count),
		ResetTime:     entry.ResetTime,
		TotalRequests: entry.Count,
	}, nil
}

// Reset deletes the counter for identifier.
func (l *RateLimiter) Reset(ctx context.Context, identifier string) error {
	key := l.cfg.Key(identifier)

	_, err := callWithTimeout(ctx, l.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.store.Delete(ctx, key)
	})

	return err
}

// Destroy stops the cleanup loop of an owned MemoryStore. Shared stores are
// left alone.
func (l *RateLimiter) Destroy() {
	if l.owned != nil {
		_ = l.owned.Close()
	}
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)

	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}
