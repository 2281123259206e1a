package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimit-guard/internal/audit"
	"github.com/serroba/ratelimit-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"

	// HeaderUserID carries the authenticated user resolved by the edge proxy.
	HeaderUserID = "X-User-ID"
)

// Limiter is the part of ratelimit.RateLimiter the middleware needs.
type Limiter interface {
	Name() string
	CheckLimit(ctx context.Context, identifier string) ratelimit.Result
}

// ViolationRecorder receives every denied check.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, v audit.Violation)
}

// KeyFunc extracts the identifier to limit on. An empty identifier skips
// rate limiting for the request.
type KeyFunc func(ctx huma.Context) string

// ByClientIP limits on the resolved client address.
func ByClientIP(ctx huma.Context) string {
	return ClientIP(ctx)
}

// ByHeader limits on the value of header.
func ByHeader(header string) KeyFunc {
	return func(ctx huma.Context) string {
		return ctx.Header(header)
	}
}

// RateLimit returns a Huma middleware that applies limiter to each request.
// Every limited response carries the X-RateLimit headers; denied requests get
// a 429 with Retry-After and are handed to recorder.
func RateLimit(
	api huma.API,
	limiter Limiter,
	keyFn KeyFunc,
	recorder ViolationRecorder,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		key := keyFn(ctx)
		if key == "" {
			next(ctx)

			return
		}

		res := limiter.CheckLimit(ctx.Context(), key)
		SetHeaders(ctx, res)

		if res.Allowed {
			next(ctx)

			return
		}

		retryAfter := res.RetryAfter(time.Now())
		ctx.SetHeader(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))

		logger.Warn("rate limit exceeded",
			zap.String("limiter", limiter.Name()),
			zap.String("method", ctx.Method()),
			zap.Int64("count", res.TotalRequests),
			zap.Int64("max", res.Limit),
			zap.String("client_ip", ClientIP(ctx)),
		)

		recorder.RecordViolation(ctx.Context(), audit.Violation{
			Limiter:    limiter.Name(),
			Identifier: key,
			ClientIP:   ClientIP(ctx),
			Result:     res,
		})

		msg := fmt.Sprintf("rate limit exceeded: %d/%d requests, retry in %ds",
			res.TotalRequests, res.Limit, retryAfter)
		_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
	}
}

// SetHeaders writes the limit, remaining quota and reset time of res.
func SetHeaders(ctx huma.Context, res ratelimit.Result) {
	ctx.SetHeader(HeaderLimit, strconv.FormatInt(res.Limit, 10))
	ctx.SetHeader(HeaderRemaining, strconv.FormatInt(res.Remaining, 10))
	ctx.SetHeader(HeaderReset, FormatReset(res.ResetTime))
}

// FormatReset renders a reset time as ISO-8601 in UTC with millisecond precision.
func FormatReset(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
