package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	Healthy        = "healthy"
	Unhealthy      = "unhealthy"
)

// Checker defines the interface for checking service health.
type Checker interface {
	Ping(ctx context.Context) error
}

// RedisChecker adapts a redis client to Checker interface.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Handler handles health check operations. Dependencies are optional: the
// service keeps limiting in-process when they are down, so an unhealthy
// dependency degrades the status but never fails the check.
type Handler struct {
	checkers map[string]Checker
}

// NewHandler creates a new health handler over the named dependencies.
func NewHandler(checkers map[string]Checker) *Handler {
	return &Handler{checkers: checkers}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies,omitempty"`
	}
}

// Check performs a health check of the application and its dependencies.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = StatusOK

	if len(h.checkers) == 0 {
		return resp, nil
	}

	resp.Body.Dependencies = make(map[string]string, len(h.checkers))

	for name, checker := range h.checkers {
		if err := checker.Ping(ctx); err != nil {
			resp.Body.Dependencies[name] = Unhealthy
			resp.Body.Status = StatusDegraded

			continue
		}

		resp.Body.Dependencies[name] = Healthy
	}

	return resp, nil
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Get(api, "/health", h.Check)
}
