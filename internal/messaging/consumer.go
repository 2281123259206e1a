package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// DefaultHandlerTimeout bounds a single handler call.
const DefaultHandlerTimeout = 10 * time.Second

// Handler processes a single event. A returned error nacks the message so it is redelivered.
type Handler[T any] func(ctx context.Context, event *T) error

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	handlerTimeout time.Duration
}

// WithHandlerTimeout sets the deadline of each handler call. Zero disables it.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.handlerTimeout = d
	}
}

// Consumer subscribes to a topic and processes messages with a typed handler.
// Messages are handled one at a time in arrival order.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	cfg        consumerConfig
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewConsumer creates a new generic consumer for a specific event type.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	cfg := consumerConfig{handlerTimeout: DefaultHandlerTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		cfg:        cfg,
		logger:     logger.With(zap.String("topic", topic)),
		done:       make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start begins consuming messages from the topic.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		cancel()

		return err
	}

	c.cancel = cancel

	go c.consumeLoop(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handleMessage(ctx context.Context, msg *message.Message) {
	log := c.logger.With(zap.String("message_uuid", msg.UUID))

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Redelivery cannot fix a payload that does not decode.
		log.Error("dropping undecodable event", zap.Error(err))
		msg.Ack()

		return
	}

	if c.cfg.handlerTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.cfg.handlerTimeout)
		defer cancel()
	}

	if err := c.handler(ctx, &event); err != nil {
		log.Error("failed to handle event", zap.Error(err))
		msg.Nack()

		return
	}

	msg.Ack()

	log.Debug("processed event")
}

// Shutdown stops the consumer and waits for the in-flight message to
// complete. It is a no-op for a consumer that never started.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel == nil {
		return nil
	}

	c.cancel()
	<-c.done

	return nil
}
