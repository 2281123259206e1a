package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable represents a component that can be started and shutdown.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup starts and stops the consumers sharing one subscriber.
type ConsumerGroup struct {
	consumers  []Runnable
	subscriber message.Subscriber
	logger     *zap.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewConsumerGroup creates a new consumer group.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a consumer to the group.
func (g *ConsumerGroup) Add(consumer Runnable) {
	g.consumers = append(g.consumers, consumer)
}

// Topics lists the topics of consumers that expose one.
func (g *ConsumerGroup) Topics() []string {
	var topics []string

	for _, c := range g.consumers {
		if t, ok := c.(interface{ Topic() string }); ok {
			topics = append(topics, t.Topic())
		}
	}

	return topics
}

// Start starts all consumers in the group. When one fails the consumers
// already started are shut down again.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.consumers[j].Shutdown()
			}

			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
	}

	g.logger.Info("consumer group started",
		zap.Int("count", len(g.consumers)),
		zap.Strings("topics", g.Topics()),
	)

	return nil
}

// Shutdown stops all consumers, then closes the subscriber. Every step runs
// even when an earlier one fails; the errors are joined. Later calls return
// the result of the first.
func (g *ConsumerGroup) Shutdown() error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down consumer group")

		errs := make([]error, 0, len(g.consumers)+1)
		for _, consumer := range g.consumers {
			errs = append(errs, consumer.Shutdown())
		}

		errs = append(errs, g.subscriber.Close())
		g.shutdownErr = errors.Join(errs...)
	})

	return g.shutdownErr
}
