package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimit-guard/internal/audit"
	"github.com/serroba/ratelimit-guard/internal/limiters"
	"github.com/serroba/ratelimit-guard/internal/middleware"
	"github.com/serroba/ratelimit-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// GuardHandler exposes the limiter registry over HTTP.
type GuardHandler struct {
	registry *limiters.Registry
	recorder middleware.ViolationRecorder
	backoff  ratelimit.Backoff
	now      func() time.Time
	logger   *zap.Logger
}

// NewGuardHandler creates a new guard handler.
func NewGuardHandler(
	registry *limiters.Registry,
	recorder middleware.ViolationRecorder,
	backoff ratelimit.Backoff,
	logger *zap.Logger,
) *GuardHandler {
	return &GuardHandler{
		registry: registry,
		recorder: recorder,
		backoff:  backoff,
		now:      time.Now,
		logger:   logger,
	}
}

func (h *GuardHandler) Check(ctx context.Context, req *CheckRequest) (*DecisionResponse, error) {
	limiter, err := h.limiter(req.Name)
	if err != nil {
		return nil, err
	}

	return h.decide(ctx, limiter, req.Body.Identifier, ""), nil
}

func (h *GuardHandler) CheckSpam(ctx context.Context, req *SpamCheckRequest) (*DecisionResponse, error) {
	age := time.Duration(req.Body.AccountAgeDays) * 24 * time.Hour
	tier := limiters.SelectTier(age, req.Body.Trusted)

	limiter, err := h.limiter(string(limiters.TieredName(limiters.Action(req.Action), tier)))
	if err != nil {
		return nil, err
	}

	return h.decide(ctx, limiter, req.Body.Identifier, string(tier)), nil
}

func (h *GuardHandler) RecordResult(ctx context.Context, req *ResultRequest) (*ResultResponse, error) {
	limiter, err := h.limiter(req.Name)
	if err != nil {
		return nil, err
	}

	if err := limiter.RecordResult(ctx, req.Body.Identifier, req.Body.Success); err != nil {
		h.logger.Error("failed to record result",
			zap.String("limiter", limiter.Name()),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("rate limit store unavailable")
	}

	resp := &ResultResponse{}

	if req.Body.Success {
		return resp, nil
	}

	attempt := int64(1)

	status, err := limiter.GetStatus(ctx, req.Body.Identifier)
	if err == nil && status != nil {
		attempt = status.TotalRequests
	}

	resp.Body.RetryDelayMs = h.backoff.Delay(attempt).Milliseconds()

	return resp, nil
}

func (h *GuardHandler) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	limiter, err := h.limiter(req.Name)
	if err != nil {
		return nil, err
	}

	status, err := limiter.GetStatus(ctx, req.Identifier)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("rate limit store unavailable")
	}

	if status == nil {
		return nil, huma.Error404NotFound("no active window for identifier")
	}

	resp := &StatusResponse{}
	resp.Body.Limit = status.Limit
	resp.Body.Remaining = status.Remaining
	resp.Body.ResetTime = status.ResetTime
	resp.Body.TotalRequests = status.TotalRequests

	return resp, nil
}

func (h *GuardHandler) Reset(ctx context.Context, req *ResetRequest) (*struct{}, error) {
	limiter, err := h.limiter(req.Name)
	if err != nil {
		return nil, err
	}

	if err := limiter.Reset(ctx, req.Identifier); err != nil {
		return nil, huma.Error503ServiceUnavailable("rate limit store unavailable")
	}

	h.logger.Info("rate limit reset",
		zap.String("limiter", limiter.Name()),
		zap.String("identifier", req.Identifier),
		zap.String("user_id", req.UserID),
	)

	return &struct{}{}, nil
}

func (h *GuardHandler) List(_ context.Context, _ *struct{}) (*ListResponse, error) {
	resp := &ListResponse{}

	for _, l := range h.registry.All() {
		cfg := l.Config()
		resp.Body.Limiters = append(resp.Body.Limiters, LimiterInfo{
			Name:        l.Name(),
			WindowMs:    cfg.Window.Milliseconds(),
			MaxRequests: cfg.MaxRequests,
		})
	}

	return resp, nil
}

func (h *GuardHandler) limiter(name string) (*ratelimit.RateLimiter, error) {
	limiter, err := h.registry.Limiter(limiters.Name(name))
	if errors.Is(err, limiters.ErrUnknownLimiter) {
		return nil, huma.Error404NotFound("unknown limiter: " + name)
	}

	return limiter, err
}

func (h *GuardHandler) decide(ctx context.Context, limiter *ratelimit.RateLimiter, identifier, tier string) *DecisionResponse {
	res := limiter.CheckLimit(ctx, identifier)

	resp := &DecisionResponse{
		Limit:     strconv.FormatInt(res.Limit, 10),
		Remaining: strconv.FormatInt(res.Remaining, 10),
		Reset:     middleware.FormatReset(res.ResetTime),
		Body: Decision{
			Limiter:       limiter.Name(),
			Allowed:       res.Allowed,
			Limit:         res.Limit,
			Remaining:     res.Remaining,
			ResetTime:     res.ResetTime,
			TotalRequests: res.TotalRequests,
			Tier:          tier,
		},
	}

	if res.Allowed {
		return resp
	}

	resp.RetryAfter = strconv.FormatInt(res.RetryAfter(h.now()), 10)

	h.recorder.RecordViolation(ctx, audit.Violation{
		Limiter:    limiter.Name(),
		Identifier: identifier,
		ClientIP:   middleware.RequestMetaFromContext(ctx).ClientIP,
		Result:     res,
	})

	return resp
}
