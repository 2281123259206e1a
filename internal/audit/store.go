package audit

import (
	"context"

	"github.com/serroba/ratelimit-guard/internal/messaging"
)

// Store defines the interface for persisting limit violations.
type Store interface {
	SaveLimitExceeded(ctx context.Context, event *LimitExceededEvent) error
}

// NewHandler returns a consumer handler that persists every event to store.
func NewHandler(store Store) messaging.Handler[LimitExceededEvent] {
	return func(ctx context.Context, event *LimitExceededEvent) error {
		return store.SaveLimitExceeded(ctx, event)
	}
}
