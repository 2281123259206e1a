package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimit-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// incrementScript performs the window aware increment in one round trip.
// Counters live in a hash so the window bounds travel with the count, and the
// key's PEXPIRE follows the remaining window so stale windows evict themselves.
// Time comes from the Redis server so every instance agrees on window edges.
var incrementScript = redis.NewScript(`
-- KEYS[1] counter key
-- ARGV[1] window length in milliseconds
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local window = tonumber(ARGV[1])

local state = redis.call('HMGET', KEYS[1], 'count', 'reset')
local count = tonumber(state[1])
local reset = tonumber(state[2])

if count == nil or reset == nil or reset <= now then
  count = 1
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', count, 'reset', reset, 'first', now)
else
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
end

redis.call('PEXPIRE', KEYS[1], math.max(reset - now, 1))

return {count, reset}
`)

// RateLimitRedisStore is a Redis implementation of ratelimit.Store for
// deployments with several instances sharing one budget.
//
// Increment never fails: when Redis is unreachable or no client is configured
// it returns a fresh first-request counter and logs the outage once.
type RateLimitRedisStore struct {
	client   redis.UniversalClient
	logger   *zap.Logger
	now      func() time.Time
	degraded atomic.Bool
}

// NewRateLimitRedisStore creates a Redis-backed counter store. A nil client is
// accepted and makes every Increment fail open.
func NewRateLimitRedisStore(client redis.UniversalClient, logger *zap.Logger) *RateLimitRedisStore {
	return &RateLimitRedisStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// NewRedisClient builds a client from a redis:// or rediss:// URL. A non-empty
// token replaces any password carried by the URL.
func NewRedisClient(rawURL, token string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if token != "" {
		opts.Password = token
	}

	return redis.NewClient(opts), nil
}

func (r *RateLimitRedisStore) Increment(ctx context.Context, key string, window time.Duration) (ratelimit.Counter, error) {
	if r.client == nil {
		r.markDown(errors.New("redis client not configured"))

		return r.fallback(window), nil
	}

	vals, err := incrementScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err == nil && len(vals) != 2 {
		err = fmt.Errorf("unexpected increment reply of %d values", len(vals))
	}

	if err != nil {
		r.markDown(err)

		return r.fallback(window), nil
	}

	r.markUp()

	return ratelimit.Counter{
		Count:     vals[0],
		ResetTime: time.UnixMilli(vals[1]),
	}, nil
}

func (r *RateLimitRedisStore) Get(ctx context.Context, key string) (*ratelimit.CounterEntry, error) {
	if r.client == nil {
		return nil, nil
	}

	vals, err := r.client.HMGet(ctx, key, "count", "reset", "first").Result()
	if err != nil {
		return nil, fmt.Errorf("redis get counter: %w", err)
	}

	count, okCount := parseInt(vals[0])
	reset, okReset := parseInt(vals[1])

	if !okCount || !okReset {
		return nil, nil
	}

	first, _ := parseInt(vals[2])

	entry := &ratelimit.CounterEntry{
		Count:            count,
		ResetTime:        time.UnixMilli(reset),
		FirstRequestTime: time.UnixMilli(first),
	}

	if entry.Expired(r.now()) {
		return nil, nil
	}

	return entry, nil
}

func (r *RateLimitRedisStore) Set(ctx context.Context, key string, entry ratelimit.CounterEntry, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"count", entry.Count,
			"reset", entry.ResetTime.UnixMilli(),
			"first", entry.FirstRequestTime.UnixMilli(),
		)
		pipe.PExpire(ctx, key, ttl)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set counter: %w", err)
	}

	return nil
}

func (r *RateLimitRedisStore) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete counter: %w", err)
	}

	return nil
}

func (r *RateLimitRedisStore) fallback(window time.Duration) ratelimit.Counter {
	return ratelimit.Counter{Count: 1, ResetTime: r.now().Add(window)}
}

func (r *RateLimitRedisStore) markDown(err error) {
	if r.degraded.CompareAndSwap(false, true) {
		r.logger.Warn("redis rate limit store unavailable, failing open", zap.Error(err))
	}
}

func (r *RateLimitRedisStore) markUp() {
	if r.degraded.CompareAndSwap(true, false) {
		r.logger.Info("redis rate limit store recovered")
	}
}

func parseInt(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}
