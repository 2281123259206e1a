package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// MetadataEventType carries the topic an event was published on, so streams
// shared by several event types can still be told apart by consumers.
const MetadataEventType = "event_type"

// Publish is a function that publishes a typed event.
type Publish[T any] func(ctx context.Context, event *T) error

// Identified events reuse their own ID as the message UUID, which keeps the
// two joinable in logs and lets stores deduplicate redeliveries.
type Identified interface {
	EventID() string
}

// NewPublishFunc creates a typed publish function for a specific topic.
func NewPublishFunc[T any](publisher message.Publisher, topic string) Publish[T] {
	return func(ctx context.Context, event *T) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", topic, err)
		}

		id := watermill.NewUUID()
		if identified, ok := any(event).(Identified); ok && identified.EventID() != "" {
			id = identified.EventID()
		}

		msg := message.NewMessage(id, payload)
		msg.Metadata.Set(MetadataEventType, topic)
		msg.SetContext(ctx)

		if err := publisher.Publish(topic, msg); err != nil {
			return fmt.Errorf("publish %s event: %w", topic, err)
		}

		return nil
	}
}

// PublisherGroup owns the publisher shared by every publish function.
type PublisherGroup struct {
	publisher message.Publisher
}

// NewPublisherGroup creates a new publisher group.
func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{publisher: publisher}
}

// Publisher returns the underlying message publisher for creating typed publish functions.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the underlying publisher.
func (g *PublisherGroup) Shutdown() error {
	return g.publisher.Close()
}
