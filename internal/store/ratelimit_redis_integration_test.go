//go:build integration

package store_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimit-guard/internal/ratelimit"
	"github.com/serroba/ratelimit-guard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}

	return "localhost:6379"
}

func TestRateLimitRedisStoreIntegration(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: getRedisAddr(),
	})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	s := store.NewRateLimitRedisStore(client, zap.NewNop())

	newKey := func(t *testing.T) string {
		key := "it:" + uuid.NewString()
		t.Cleanup(func() { client.Del(ctx, key) })

		return key
	}

	t.Run("increments within a window", func(t *testing.T) {
		key := newKey(t)

		first, err := s.Increment(ctx, key, time.Minute)
		require.NoError(t, err)

		second, err := s.Increment(ctx, key, time.Minute)
		require.NoError(t, err)

		assert.Equal(t, int64(1), first.Count)
		assert.Equal(t, int64(2), second.Count)
		assert.Equal(t, first.ResetTime, second.ResetTime)

		ttl := client.PTTL(ctx, key).Val()
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		key := newKey(t)

		const n = 100

		var wg sync.WaitGroup

		for range n {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, _ = s.Increment(ctx, key, time.Minute)
			}()
		}

		wg.Wait()

		entry, err := s.Get(ctx, key)

		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, int64(n), entry.Count)
	})

	t.Run("starts over after the window", func(t *testing.T) {
		key := newKey(t)

		_, _ = s.Increment(ctx, key, 50*time.Millisecond)
		_, _ = s.Increment(ctx, key, 50*time.Millisecond)

		time.Sleep(80 * time.Millisecond)

		counter, err := s.Increment(ctx, key, 50*time.Millisecond)

		require.NoError(t, err)
		assert.Equal(t, int64(1), counter.Count)
	})

	t.Run("set get delete", func(t *testing.T) {
		key := newKey(t)
		now := time.Now().Truncate(time.Millisecond)

		entry := ratelimit.CounterEntry{Count: 7, FirstRequestTime: now, ResetTime: now.Add(time.Minute)}
		require.NoError(t, s.Set(ctx, key, entry, time.Minute))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(7), got.Count)
		assert.True(t, entry.ResetTime.Equal(got.ResetTime))

		require.NoError(t, s.Delete(ctx, key))

		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("limiters sharing the store use separate keys", func(t *testing.T) {
		prefix := "it-" + uuid.NewString()
		t.Cleanup(func() {
			client.Del(ctx, prefix+"-a:user", prefix+"-b:user")
		})

		a, err := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxRequests: 1, Prefix: prefix + "-a", Store: s})
		require.NoError(t, err)

		b, err := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxRequests: 1, Prefix: prefix + "-b", Store: s})
		require.NoError(t, err)

		assert.True(t, a.CheckLimit(ctx, "user").Allowed)
		assert.False(t, a.CheckLimit(ctx, "user").Allowed)
		assert.True(t, b.CheckLimit(ctx, "user").Allowed)
	})
}
