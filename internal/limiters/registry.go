// Package limiters holds the preconfigured rate limiters of the service, one
// per protected use case, and the account tier policy for anti-spam limits.
package limiters

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/serroba/ratelimit-guard/internal/ratelimit"
)

// ErrUnknownLimiter is returned for names the registry does not hold.
var ErrUnknownLimiter = errors.New("unknown limiter")

// Name identifies a limiter in the registry. It is also the key prefix.
type Name string

const (
	NameAuth          Name = "auth"
	NamePasswordReset Name = "password-reset"
	NameAdmin         Name = "admin"
	NameWebhook       Name = "webhook"
	NamePayouts       Name = "payouts"
)

// spamWindow is shared by every tier of every anti-spam action.
const spamWindow = time.Hour

// Definition is the static shape of a registry limiter.
type Definition struct {
	Name                   Name
	Window                 time.Duration
	MaxRequests            int64
	KeyGenerator           ratelimit.KeyGenerator
	SkipSuccessfulRequests bool
	SkipFailedRequests     bool
}

// Definitions returns the limiter table in registration order.
func Definitions() []Definition {
	defs := []Definition{
		{
			// Brute force protection, keyed by network address. Successful
			// logins do not count against the budget.
			Name:                   NameAuth,
			Window:                 15 * time.Minute,
			MaxRequests:            5,
			KeyGenerator:           normalizeAddress,
			SkipSuccessfulRequests: true,
		},
		{
			Name:         NamePasswordReset,
			Window:       time.Hour,
			MaxRequests:  3,
			KeyGenerator: normalizeEmail,
		},
		{
			Name:        NameAdmin,
			Window:      time.Minute,
			MaxRequests: 100,
		},
		{
			// Only failed deliveries count, so a noisy but healthy source is never cut off.
			Name:                   NameWebhook,
			Window:                 time.Minute,
			MaxRequests:            1000,
			SkipSuccessfulRequests: true,
		},
		{
			// One budget for the whole deployment, spent only by calls the
			// payment provider accepted.
			Name:               NamePayouts,
			Window:             time.Minute,
			MaxRequests:        60,
			KeyGenerator:       globalKey,
			SkipFailedRequests: true,
		},
	}

	for _, action := range Actions {
		for _, tier := range []Tier{TierNew, TierRegular, TierTrusted} {
			defs = append(defs, Definition{
				Name:        TieredName(action, tier),
				Window:      spamWindow,
				MaxRequests: spamLimits[action][tier],
			})
		}
	}

	return defs
}

var spamLimits = map[Action]map[Tier]int64{
	ActionPage:    {TierNew: 3, TierRegular: 10, TierTrusted: 30},
	ActionReply:   {TierNew: 10, TierRegular: 30, TierTrusted: 100},
	ActionAccount: {TierNew: 1, TierRegular: 3, TierTrusted: 10},
}

// Registry owns one RateLimiter per Definition.
type Registry struct {
	limiters map[Name]*ratelimit.RateLimiter
	order    []Name
}

// NewRegistry builds every limiter. All limiters share store when it is not
// nil; otherwise each limiter keeps its own in-process counters.
func NewRegistry(store ratelimit.Store, opts ...ratelimit.Option) (*Registry, error) {
	defs := Definitions()
	r := &Registry{
		limiters: make(map[Name]*ratelimit.RateLimiter, len(defs)),
		order:    make([]Name, 0, len(defs)),
	}

	for _, def := range defs {
		l, err := ratelimit.New(ratelimit.Config{
			Window:                 def.Window,
			MaxRequests:            def.MaxRequests,
			KeyGenerator:           def.KeyGenerator,
			SkipSuccessfulRequests: def.SkipSuccessfulRequests,
			SkipFailedRequests:     def.SkipFailedRequests,
			Prefix:                 string(def.Name),
			Store:                  store,
		}, opts...)
		if err != nil {
			r.Destroy()

			return nil, fmt.Errorf("limiter %s: %w", def.Name, err)
		}

		r.limiters[def.Name] = l
		r.order = append(r.order, def.Name)
	}

	return r, nil
}

// Limiter looks a limiter up by name.
func (r *Registry) Limiter(name Name) (*ratelimit.RateLimiter, error) {
	l, ok := r.limiters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLimiter, name)
	}

	return l, nil
}

// All returns the limiters in registration order.
func (r *Registry) All() []*ratelimit.RateLimiter {
	out := make([]*ratelimit.RateLimiter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.limiters[name])
	}

	return out
}

func (r *Registry) Auth() *ratelimit.RateLimiter          { return r.limiters[NameAuth] }
func (r *Registry) PasswordReset() *ratelimit.RateLimiter { return r.limiters[NamePasswordReset] }
func (r *Registry) Admin() *ratelimit.RateLimiter         { return r.limiters[NameAdmin] }
func (r *Registry) Webhook() *ratelimit.RateLimiter       { return r.limiters[NameWebhook] }
func (r *Registry) Payouts() *ratelimit.RateLimiter       { return r.limiters[NamePayouts] }

// ForAction returns the anti-spam limiter for action given the account's age
// and trust flag.
func (r *Registry) ForAction(action Action, age time.Duration, trusted bool) (*ratelimit.RateLimiter, error) {
	return r.Limiter(TieredName(action, SelectTier(age, trusted)))
}

// Destroy stops background work of every limiter.
func (r *Registry) Destroy() {
	for _, l := range r.limiters {
		l.Destroy()
	}
}

// Shutdown lets the registry be managed by a dependency injector.
func (r *Registry) Shutdown() error {
	r.Destroy()

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func globalKey(string) string {
	return "global"
}
