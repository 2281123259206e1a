package middleware

import (
	"context"
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

type requestMetaKey struct{}

// RequestMeta holds caller details attached to every request.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	UserID    string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}

// RequestMetaMiddleware adds client IP, user-agent and user id to the request context.
func RequestMetaMiddleware(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := RequestMeta{
			ClientIP:  ClientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
			UserID:    ctx.Header(HeaderUserID),
		}

		next(huma.WithContext(ctx, ContextWithRequestMeta(ctx.Context(), meta)))
	}
}

// ClientIP extracts the client IP from the request, considering proxies.
func ClientIP(ctx huma.Context) string {
	// Check X-Forwarded-For header (may contain multiple IPs)
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if addr == "" {
		addr = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
