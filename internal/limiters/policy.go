package limiters

import "time"

// Tier is an account trust level used by the anti-spam limiters.
type Tier string

const (
	// TierNew applies to accounts younger than NewAccountAge.
	TierNew Tier = "new"
	// TierRegular applies to accounts between NewAccountAge and TrustedAccountAge.
	TierRegular Tier = "regular"
	// TierTrusted applies to old or explicitly trusted accounts.
	TierTrusted Tier = "trusted"
)

const (
	// NewAccountAge is the age below which an account is considered new.
	NewAccountAge = 7 * 24 * time.Hour
	// TrustedAccountAge is the age from which an account is trusted.
	TrustedAccountAge = 90 * 24 * time.Hour
)

// Action is a content creation action guarded by a tiered limiter.
type Action string

const (
	ActionPage    Action = "page"
	ActionReply   Action = "reply"
	ActionAccount Action = "account"
)

// Actions lists every tiered action.
var Actions = []Action{ActionPage, ActionReply, ActionAccount}

// SelectTier maps account attributes to a tier. Explicit trust wins at any age.
func SelectTier(age time.Duration, trusted bool) Tier {
	switch {
	case trusted || age >= TrustedAccountAge:
		return TierTrusted
	case age >= NewAccountAge:
		return TierRegular
	default:
		return TierNew
	}
}

// TieredName returns the registry name of the limiter for action at tier.
func TieredName(action Action, tier Tier) Name {
	return Name("spam-" + string(action) + "-" + string(tier))
}
