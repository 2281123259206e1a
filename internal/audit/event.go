package audit

import "time"

// TopicLimitExceeded carries one event per denied rate limit check.
const TopicLimitExceeded = "ratelimit.exceeded"

// LimitExceededEvent records a request that was denied by a limiter.
type LimitExceededEvent struct {
	ID         string    `json:"id"`
	Limiter    string    `json:"limiter"`
	Identifier string    `json:"identifier"`
	Count      int64     `json:"count"`
	Max        int64     `json:"max"`
	ResetTime  time.Time `json:"resetTime"`
	OccurredAt time.Time `json:"occurredAt"`
	ClientIP   string    `json:"clientIp,omitempty"`
}

// EventID lets the publisher reuse ID as the message UUID.
func (e LimitExceededEvent) EventID() string {
	return e.ID
}
