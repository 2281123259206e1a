// Package container wires the service with samber/do. Each *Package function
// registers the providers of one concern; binaries pick the packages they need.
package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/ratelimit-guard/internal/audit"
	auditstore "github.com/serroba/ratelimit-guard/internal/audit/store"
	"github.com/serroba/ratelimit-guard/internal/handlers"
	"github.com/serroba/ratelimit-guard/internal/health"
	"github.com/serroba/ratelimit-guard/internal/limiters"
	"github.com/serroba/ratelimit-guard/internal/messaging"
	"github.com/serroba/ratelimit-guard/internal/middleware"
	"github.com/serroba/ratelimit-guard/internal/ratelimit"
	"github.com/serroba/ratelimit-guard/internal/store"
	"go.uber.org/zap"
)

// AuditConsumerGroup is the redis streams consumer group of the audit consumer.
const AuditConsumerGroup = "audit"

const connectTimeout = 5 * time.Second

// ErrRedisRequired is returned when the audit consumer starts without Redis.
var ErrRedisRequired = errors.New("audit consumer requires redis")

// Options is read from flags and SERVICE_* environment variables by humacli.
type Options struct {
	Port              int    `default:"8080"   help:"Port to listen on"                                     short:"p"`
	LogFormat         string `default:"json"   help:"Log format: json or console"`
	RedisURL          string `default:""       help:"Redis URL for shared counters, e.g. rediss://host:6379"`
	RedisToken        string `default:""       help:"Redis access token"`
	PostgresURL       string `default:""       help:"Postgres URL for the violation audit trail"`
	StoreTimeoutMs    int    `default:"500"    help:"Deadline for each counter store call in milliseconds"`
	CleanupIntervalMs int    `default:"300000" help:"Sweep interval of in-process counters in milliseconds"`
}

// RedisConfigured reports whether a shared counter backend was configured.
// Both the URL and the token are required.
func (o *Options) RedisConfigured() bool {
	return o.RedisURL != "" && o.RedisToken != ""
}

// RedisConnection holds the optional Redis client. Client is nil when Redis
// is not configured.
type RedisConnection struct {
	Client *redis.Client
}

func (c *RedisConnection) Shutdown() error {
	if c.Client == nil {
		return nil
	}

	return c.Client.Close()
}

// PostgresConnection holds the optional Postgres pool. Pool is nil when
// Postgres is not configured.
type PostgresConnection struct {
	Pool *pgxpool.Pool
}

func (c *PostgresConnection) Shutdown() error {
	if c.Pool != nil {
		c.Pool.Close()
	}

	return nil
}

func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "console" {
			return zap.NewDevelopment()
		}

		return zap.NewProduction()
	})
}

func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisConnection, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if !opts.RedisConfigured() {
			logger.Info("redis not configured, using in-process rate limit counters")

			return &RedisConnection{}, nil
		}

		client, err := store.NewRedisClient(opts.RedisURL, opts.RedisToken)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		// Unreachable Redis is not fatal: the store fails open until it recovers.
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}

		return &RedisConnection{Client: client}, nil
	})
}

func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresConnection, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.PostgresURL == "" {
			logger.Info("postgres not configured, violations are only logged")

			return &PostgresConnection{}, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresConnection{Pool: pool}, nil
	})
}

func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		return reg, nil
	})

	do.Provide(i, func(i *do.Injector) (*limiters.Registry, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		conn := do.MustInvoke[*RedisConnection](i)
		reg := do.MustInvoke[*prometheus.Registry](i)

		var counters ratelimit.Store
		if conn.Client != nil {
			counters = store.NewRateLimitRedisStore(conn.Client, logger)
		}

		return limiters.NewRegistry(counters,
			ratelimit.WithLogger(logger),
			ratelimit.WithTimeout(time.Duration(opts.StoreTimeoutMs)*time.Millisecond),
			ratelimit.WithCleanup(time.Duration(opts.CleanupIntervalMs)*time.Millisecond),
			ratelimit.WithRegisterer(reg),
		)
	})
}

// PublisherPackage publishes violation events to redis streams when Redis is
// configured and to an in-process channel otherwise.
func PublisherPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		conn := do.MustInvoke[*RedisConnection](i)

		var publisher message.Publisher

		if conn.Client == nil {
			publisher = gochannel.NewGoChannel(gochannel.Config{}, messaging.NewZapLogger(logger))
		} else {
			var err error

			publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{
				Client: conn.Client,
			}, messaging.NewZapLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("create publisher: %w", err)
			}
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (*audit.Recorder, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return audit.NewRecorder(
			messaging.NewPublishFunc[audit.LimitExceededEvent](group.Publisher(), audit.TopicLimitExceeded),
			logger,
		)
	})
}

func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		conn := do.MustInvoke[*RedisConnection](i)
		pg := do.MustInvoke[*PostgresConnection](i)

		if conn.Client == nil {
			return nil, ErrRedisRequired
		}

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        conn.Client,
			ConsumerGroup: AuditConsumerGroup,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}

		var violations audit.Store = auditstore.NewNoop(logger)

		if pg.Pool != nil {
			pgStore := auditstore.NewPostgres(pg.Pool)

			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()

			if err := pgStore.EnsureSchema(ctx); err != nil {
				return nil, err
			}

			violations = pgStore
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			audit.TopicLimitExceeded,
			audit.NewHandler(violations),
			logger,
		))

		return group, nil
	})
}

func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*chi.Mux, error) {
		reg := do.MustInvoke[*prometheus.Registry](i)

		router := chi.NewMux()
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)
		registry := do.MustInvoke[*limiters.Registry](i)
		recorder := do.MustInvoke[*audit.Recorder](i)
		conn := do.MustInvoke[*RedisConnection](i)
		pg := do.MustInvoke[*PostgresConnection](i)

		api := humachi.New(router, huma.DefaultConfig("Rate Limit Guard", "1.0.0"))
		api.UseMiddleware(middleware.RequestMetaMiddleware(api))

		adminGuard := middleware.RateLimit(api, registry.Admin(),
			middleware.ByHeader(middleware.HeaderUserID), recorder, logger)

		guard := handlers.NewGuardHandler(registry, recorder, ratelimit.DefaultBackoff, logger)
		handlers.RegisterRoutes(api, guard, adminGuard)

		checkers := map[string]health.Checker{}
		if conn.Client != nil {
			checkers["redis"] = health.NewRedisChecker(conn.Client)
		}

		if pg.Pool != nil {
			checkers["postgres"] = pg.Pool
		}

		health.RegisterRoutes(api, health.NewHandler(checkers))

		return api, nil
	})
}
