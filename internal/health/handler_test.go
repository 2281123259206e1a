package health_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimit-guard/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	err error
}

func (m *mockChecker) Ping(_ context.Context) error {
	return m.err
}

func TestNewHandler(t *testing.T) {
	handler := health.NewHandler(map[string]health.Checker{"redis": &mockChecker{}})

	assert.NotNil(t, handler)
}

func TestHandler_Check(t *testing.T) {
	t.Run("returns ok without dependencies", func(t *testing.T) {
		handler := health.NewHandler(nil)

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusOK, resp.Body.Status)
		assert.Empty(t, resp.Body.Dependencies)
	})

	t.Run("returns ok when dependencies are healthy", func(t *testing.T) {
		handler := health.NewHandler(map[string]health.Checker{
			"redis":    &mockChecker{},
			"postgres": &mockChecker{},
		})

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusOK, resp.Body.Status)
		assert.Equal(t, map[string]string{"redis": health.Healthy, "postgres": health.Healthy}, resp.Body.Dependencies)
	})

	t.Run("returns degraded when a dependency is unhealthy", func(t *testing.T) {
		handler := health.NewHandler(map[string]health.Checker{
			"redis":    &mockChecker{err: errors.New("connection refused")},
			"postgres": &mockChecker{},
		})

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusDegraded, resp.Body.Status)
		assert.Equal(t, health.Unhealthy, resp.Body.Dependencies["redis"])
		assert.Equal(t, health.Healthy, resp.Body.Dependencies["postgres"])
	})
}

func TestRegisterRoutes(t *testing.T) {
	_, api := humatest.New(t)
	health.RegisterRoutes(api, health.NewHandler(map[string]health.Checker{
		"redis": &mockChecker{err: errors.New("down")},
	}))

	resp := api.Get("/health")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"degraded"`)
}

func TestRedisChecker(t *testing.T) {
	t.Run("Ping fails when redis is unreachable", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		t.Cleanup(func() { _ = client.Close() })

		err := health.NewRedisChecker(client).Ping(context.Background())

		assert.Error(t, err)
	})

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	t.Run("Ping returns nil when redis is available", func(t *testing.T) {
		checker := health.NewRedisChecker(client)

		err := checker.Ping(context.Background())

		assert.NoError(t, err)
	})
}
