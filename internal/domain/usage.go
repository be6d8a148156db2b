package domain

import "time"

// DenialReason explains why the usage gate refused a consumption.
type DenialReason string

const (
	DenialExpired       DenialReason = "expired"
	DenialLimitExceeded DenialReason = "limit_exceeded"
)

// UsageDecision is the outcome of Authorize.
type UsageDecision struct {
	Allowed   bool         `json:"allowed"`
	Reason    DenialReason `json:"reason,omitempty"`
	Remaining int          `json:"remaining"` // UnlimitedUsage when the plan has no quota
}

// Authorize decides whether the user may consume one more usage unit.
// Expiry is checked before the count, so an expired and exhausted record
// reports "expired". Authorize never mutates the user.
func Authorize(user *User, now time.Time) UsageDecision {
	if user.ExpiresAt != nil && now.After(*user.ExpiresAt) {
		return UsageDecision{Reason: DenialExpired, Remaining: user.RemainingUsage()}
	}
	if user.UsageLimit != UnlimitedUsage && user.UsageCount >= user.UsageLimit {
		return UsageDecision{Reason: DenialLimitExceeded}
	}
	return UsageDecision{Allowed: true, Remaining: user.RemainingUsage()}
}

// RemainingUsage is the number of units left, or UnlimitedUsage.
func (u *User) RemainingUsage() int {
	if u.UsageLimit == UnlimitedUsage {
		return UnlimitedUsage
	}
	if left := u.UsageLimit - u.UsageCount; left > 0 {
		return left
	}
	return 0
}
