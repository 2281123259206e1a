package messaging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/ratelimit-guard/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	messages   []*message.Message
	topic      string
	publishErr error
	closeErr   error
}

func (m *mockPublisher) Publish(topic string, msgs ...*message.Message) error {
	if m.publishErr != nil {
		return m.publishErr
	}

	m.topic = topic
	m.messages = append(m.messages, msgs...)

	return nil
}

func (m *mockPublisher) Close() error {
	return m.closeErr
}

type publishTestEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type identifiedTestEvent struct {
	ID string `json:"id"`
}

func (e identifiedTestEvent) EventID() string { return e.ID }

func TestNewPublishFunc(t *testing.T) {
	t.Run("publishes event successfully", func(t *testing.T) {
		mock := &mockPublisher{}
		publish := messaging.NewPublishFunc[publishTestEvent](mock, "test.topic")

		event := &publishTestEvent{ID: "123", Name: "test"}

		err := publish(context.Background(), event)

		require.NoError(t, err)
		assert.Equal(t, "test.topic", mock.topic)
		assert.Len(t, mock.messages, 1)
		assert.Contains(t, string(mock.messages[0].Payload), `"id":"123"`)
		assert.Equal(t, "test.topic", mock.messages[0].Metadata.Get(messaging.MetadataEventType))
		assert.NotEmpty(t, mock.messages[0].UUID)
	})

	t.Run("uses the event id as message uuid", func(t *testing.T) {
		mock := &mockPublisher{}
		publish := messaging.NewPublishFunc[identifiedTestEvent](mock, "test.topic")

		require.NoError(t, publish(context.Background(), &identifiedTestEvent{ID: "V1StGXR8_Z5jdHi6B-myT"}))
		require.Len(t, mock.messages, 1)
		assert.Equal(t, "V1StGXR8_Z5jdHi6B-myT", mock.messages[0].UUID)
	})

	t.Run("falls back to a generated uuid for empty ids", func(t *testing.T) {
		mock := &mockPublisher{}
		publish := messaging.NewPublishFunc[identifiedTestEvent](mock, "test.topic")

		require.NoError(t, publish(context.Background(), &identifiedTestEvent{}))
		require.Len(t, mock.messages, 1)
		assert.NotEmpty(t, mock.messages[0].UUID)
	})

	t.Run("carries the caller context", func(t *testing.T) {
		type ctxKey struct{}

		mock := &mockPublisher{}
		publish := messaging.NewPublishFunc[publishTestEvent](mock, "test.topic")
		ctx := context.WithValue(context.Background(), ctxKey{}, "trace")

		require.NoError(t, publish(ctx, &publishTestEvent{ID: "1"}))
		require.Len(t, mock.messages, 1)
		assert.Equal(t, "trace", mock.messages[0].Context().Value(ctxKey{}))
	})

	t.Run("returns error when publish fails", func(t *testing.T) {
		errPublish := errors.New("publish error")
		mock := &mockPublisher{publishErr: errPublish}
		publish := messaging.NewPublishFunc[publishTestEvent](mock, "test.topic")

		event := &publishTestEvent{ID: "123"}

		err := publish(context.Background(), event)

		require.ErrorIs(t, err, errPublish)
		assert.Contains(t, err.Error(), "test.topic")
	})
}

func TestPublisherGroup(t *testing.T) {
	t.Run("returns underlying publisher", func(t *testing.T) {
		mock := &mockPublisher{}
		group := messaging.NewPublisherGroup(mock)

		assert.Equal(t, mock, group.Publisher())
	})

	t.Run("shuts down successfully", func(t *testing.T) {
		mock := &mockPublisher{}
		group := messaging.NewPublisherGroup(mock)

		err := group.Shutdown()

		require.NoError(t, err)
	})

	t.Run("returns error when close fails", func(t *testing.T) {
		mock := &mockPublisher{closeErr: errors.New("close error")}
		group := messaging.NewPublisherGroup(mock)

		err := group.Shutdown()

		assert.Error(t, err)
	})
}
