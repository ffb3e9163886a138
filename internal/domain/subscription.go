package domain

import "time"

// SubscriptionState is the merchant's billing state, as reported by the
// billing system at the storage boundary.
type SubscriptionState string

const (
	SubscriptionActive    SubscriptionState = "active"
	SubscriptionExpired   SubscriptionState = "expired"
	SubscriptionSuspended SubscriptionState = "suspended"
)

// Subscription is the slice of billing state the ingest core needs for
// feed-skip decisions.
type Subscription struct {
	MerchantID   string            `db:"merchant_id"   json:"merchant_id"`
	State        SubscriptionState `db:"state"         json:"state"`
	ExpiredAt    *time.Time        `db:"expired_at"    json:"expired_at,omitempty"`
	FoundingTier bool              `db:"founding_tier" json:"founding_tier"`
}

// GracePolicy is configuration, not algorithm: the grace-period length and
// the founding-tier exemption vary by deployment.
type GracePolicy struct {
	GracePeriod        time.Duration `yaml:"grace_period"`
	ExemptFoundingTier bool          `yaml:"exempt_founding_tier"`
}

// ShouldSkipRun reports whether a feed run should be skipped because the
// owning merchant's subscription lapsed past the grace period. Suspended
// subscriptions skip immediately; expired ones run until the grace period
// elapses. A nil subscription (no merchant attached) never skips.
func (p GracePolicy) ShouldSkipRun(sub *Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.State {
	case SubscriptionSuspended:
		return true
	case SubscriptionExpired:
		if p.ExemptFoundingTier && sub.FoundingTier {
			return false
		}
		if sub.ExpiredAt == nil {
			return true
		}
		return now.Sub(*sub.ExpiredAt) > p.GracePeriod
	default:
		return false
	}
}
