package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/serroba/ratelimit-guard/internal/messaging"
	"github.com/serroba/ratelimit-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// Violation describes a denied check to be recorded.
type Violation struct {
	Limiter    string
	Identifier string
	ClientIP   string
	Result     ratelimit.Result
}

// Recorder turns denied checks into LimitExceededEvents. Publishing is best
// effort: a failed publish is logged and never affects the decision.
type Recorder struct {
	publish messaging.Publish[LimitExceededEvent]
	newID   func() string
	now     func() time.Time
	logger  *zap.Logger
}

// NewRecorder creates a recorder publishing through publish.
func NewRecorder(publish messaging.Publish[LimitExceededEvent], logger *zap.Logger) (*Recorder, error) {
	newID, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("event id generator: %w", err)
	}

	return &Recorder{
		publish: publish,
		newID:   newID,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// RecordViolation publishes an event for v.
func (r *Recorder) RecordViolation(ctx context.Context, v Violation) {
	event := &LimitExceededEvent{
		ID:         r.newID(),
		Limiter:    v.Limiter,
		Identifier: v.Identifier,
		Count:      v.Result.TotalRequests,
		Max:        v.Result.Limit,
		ResetTime:  v.Result.ResetTime,
		OccurredAt: r.now(),
		ClientIP:   v.ClientIP,
	}

	if err := r.publish(ctx, event); err != nil {
		r.logger.Error("failed to publish limit exceeded event",
			zap.String("limiter", v.Limiter),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
