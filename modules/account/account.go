package account

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the feature tier an account is entitled to. Tiers gate features;
// billing state explains how the tier was obtained.
type Tier string

const (
	TierFree Tier = "free"
	TierFlow Tier = "flow"
)

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierFlow
}

// SubscriptionStatus tracks where the account sits in the billing lifecycle.
type SubscriptionStatus string

const (
	StatusNone      SubscriptionStatus = "none"
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusNone, StatusTrialing, StatusActive, StatusPastDue, StatusCancelled:
		return true
	}
	return false
}

// Account is the billing-side record for a user. One row per identity
// provider subject, created lazily on the first request that needs billing
// data.
type Account struct {
	ID     uuid.UUID
	AuthID string // identity provider's user ID
	Email  string

	Tier               Tier
	SubscriptionStatus SubscriptionStatus
	Lifetime           bool // one-time purchase, immune to downgrades

	TrialStartedAt *time.Time // set exactly once, never cleared
	TrialEndsAt    *time.Time

	BillingCustomerID     string // provider's customer ID, empty until first checkout
	BillingSubscriptionID string // empty for lifetime purchases

	AIQueriesThisMonth int
	AIQueriesResetAt   time.Time // start of the usage period currently counted

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasUsedTrial reports whether the account ever started a trial. The trial is
// single-use, so a set start timestamp permanently burns it.
func (a *Account) HasUsedTrial() bool {
	return a.TrialStartedAt != nil
}

// IsTrialExpired reports whether a started trial has run past its end.
func (a *Account) IsTrialExpired(now time.Time) bool {
	if a.TrialEndsAt == nil {
		return false
	}
	return now.After(*a.TrialEndsAt)
}

// TrialDaysRemaining returns whole days left on the trial, rounded up so a
// trial with an hour left still reads as one day. Zero when no trial is
// running or it already ended.
func (a *Account) TrialDaysRemaining(now time.Time) int {
	if a.TrialEndsAt == nil || !now.Before(*a.TrialEndsAt) {
		return 0
	}
	return int((a.TrialEndsAt.Sub(now) + 24*time.Hour - 1) / (24 * time.Hour))
}

// HasPaidAccess reports whether the account currently holds the paid tier.
func (a *Account) HasPaidAccess() bool {
	return a.Tier == TierFlow
}
