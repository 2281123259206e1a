package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultStoreTimeout bounds every store call made by a RateLimiter.
const DefaultStoreTimeout = 500 * time.Millisecond

// Option configures a RateLimiter during construction.
type Option func(l *RateLimiter)

// WithLogger sets the logger used to report fail-open decisions.
func WithLogger(logger *zap.Logger) Option {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// WithTimeout sets the deadline applied around each store call.
func WithTimeout(d time.Duration) Option {
	return func(l *RateLimiter) {
		l.timeout = d
	}
}

// WithClock overrides the time source. It is also handed to the owned
// MemoryStore when the config carries no Store.
func WithClock(now func() time.Time) Option {
	return func(l *RateLimiter) {
		l.now = now
	}
}

// WithCleanup sets the sweep interval of the owned MemoryStore.
func WithCleanup(d time.Duration) Option {
	return func(l *RateLimiter) {
		l.cleanupInterval = d
	}
}

// WithRegisterer registers decision counters on r. Limiters sharing a
// registerer share the collectors and are told apart by the limiter label.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(l *RateLimiter) {
		l.metrics = newMetrics(r)
	}
}

// WithTracerProvider configures OpenTelemetry tracing for CheckLimit.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *RateLimiter) {
		l.tracer = tp.Tracer(tracerName)
	}
}
