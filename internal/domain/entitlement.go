package domain

import "time"

// Amount thresholds (major currency units) used to infer a plan from a payment.
const (
	premiumAmountThreshold = 79.0
	proAmountThreshold     = 49.0
)

// Entitlement is what a verified payment grants.
type Entitlement struct {
	Plan       PlanCode   `json:"plan"`
	UsageLimit int        `json:"usage_limit"`
	ExpiresAt  *time.Time `json:"expires_at"`
	PlanType   PlanType   `json:"plan_type"`
}

// PolicyForAmount tiers a payment amount into a plan. It never fails;
// anything below the pro threshold is basic.
func PolicyForAmount(amount float64) PlanPolicy {
	switch {
	case amount >= premiumAmountThreshold:
		return mustPlanPolicy(PlanPremium)
	case amount >= proAmountThreshold:
		return mustPlanPolicy(PlanPro)
	default:
		return mustPlanPolicy(PlanBasic)
	}
}

// PolicyForPlanCode resolves an explicitly requested plan.
func PolicyForPlanCode(code string) (PlanPolicy, error) {
	return ResolvePlanPolicy(PlanCode(code))
}

// AmountFromMinorUnits converts Stripe's integer minor units (grosze, cents)
// into major units.
func AmountFromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
