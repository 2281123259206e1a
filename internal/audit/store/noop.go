package store

import (
	"context"

	"github.com/serroba/ratelimit-guard/internal/audit"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of audit.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveLimitExceeded(_ context.Context, event *audit.LimitExceededEvent) error {
	n.logger.Info("limit exceeded event received",
		zap.String("id", event.ID),
		zap.String("limiter", event.Limiter),
		zap.Int64("count", event.Count),
		zap.Int64("max", event.Max),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}
