package handlers

import "time"

// Decision is the outcome of a single check.
type Decision struct {
	Limiter       string    `doc:"Limiter that made the decision"           example:"auth"                     json:"limiter"`
	Allowed       bool      `doc:"Whether the request may proceed"          json:"allowed"`
	Limit         int64     `doc:"Maximum requests per window"              example:"5"                        json:"limit"`
	Remaining     int64     `doc:"Requests left in the current window"      example:"4"                        json:"remaining"`
	ResetTime     time.Time `doc:"When the current window ends"             example:"2024-03-01T12:15:00.000Z" json:"resetTime"`
	TotalRequests int64     `doc:"Requests counted in the current window"   example:"1"                        json:"totalRequests"`
	Tier          string    `doc:"Account tier, for anti-spam checks only"  example:"new"                      json:"tier,omitempty"`
}

// DecisionResponse carries a decision in the body and the rate limit headers.
type DecisionResponse struct {
	Limit      string `doc:"Maximum requests per window"     header:"X-RateLimit-Limit"`
	Remaining  string `doc:"Requests left in the window"     header:"X-RateLimit-Remaining"`
	Reset      string `doc:"Window end, ISO-8601"            header:"X-RateLimit-Reset"`
	RetryAfter string `doc:"Seconds until the window resets" header:"Retry-After"`
	Body       Decision
}

// CheckRequest counts one request against a named limiter.
type CheckRequest struct {
	Name string `doc:"Limiter name" example:"auth" path:"name"`
	Body struct {
		Identifier string `doc:"Caller identity, e.g. an IP address or email" example:"203.0.113.7" json:"identifier" minLength:"1"`
	}
}

// SpamCheckRequest checks an anti-spam action for an account.
type SpamCheckRequest struct {
	Action string `doc:"Guarded action" enum:"page,reply,account" path:"action"`
	Body   struct {
		Identifier     string `doc:"Account identity"                json:"identifier"     minLength:"1"`
		AccountAgeDays int    `doc:"Account age in whole days"        json:"accountAgeDays" minimum:"0"`
		Trusted        bool   `doc:"Account is explicitly trusted"    json:"trusted,omitempty"`
	}
}

// ResultRequest reports the outcome of a guarded operation.
type ResultRequest struct {
	Name string `doc:"Limiter name" example:"auth" path:"name"`
	Body struct {
		Identifier string `doc:"Caller identity"                 json:"identifier" minLength:"1"`
		Success    bool   `doc:"Whether the operation succeeded" json:"success"`
	}
}

// ResultResponse tells the caller how long to hold off after a failure.
type ResultResponse struct {
	Body struct {
		RetryDelayMs int64 `doc:"Suggested delay before the next attempt" example:"1000" json:"retryDelayMs"`
	}
}

// StatusRequest peeks at a counter.
type StatusRequest struct {
	Name       string `doc:"Limiter name"    example:"auth"        path:"name"`
	Identifier string `doc:"Caller identity" example:"203.0.113.7" query:"identifier" required:"true"`
}

// StatusResponse is the current window of an identifier.
type StatusResponse struct {
	Body struct {
		Limit         int64     `json:"limit"`
		Remaining     int64     `json:"remaining"`
		ResetTime     time.Time `json:"resetTime"`
		TotalRequests int64     `json:"totalRequests"`
	}
}

// ResetRequest clears the counter of an identifier.
type ResetRequest struct {
	Name       string `doc:"Limiter name"    example:"auth"        path:"name"`
	Identifier string `doc:"Caller identity" example:"203.0.113.7" path:"identifier"`
	UserID     string `doc:"Acting admin"    header:"X-User-ID"    required:"true"`
}

// LimiterInfo describes a registered limiter.
type LimiterInfo struct {
	Name        string `json:"name"`
	WindowMs    int64  `json:"windowMs"`
	MaxRequests int64  `json:"maxRequests"`
}

// ListResponse lists every registered limiter.
type ListResponse struct {
	Body struct {
		Limiters []LimiterInfo `json:"limiters"`
	}
}
