package domain

import (
	"strings"
	"time"
)

// PlanCode identifies a purchasable tier.
type PlanCode string

const (
	PlanBasic   PlanCode = "basic"
	PlanGold    PlanCode = "gold"
	PlanPro     PlanCode = "pro"
	PlanPremium PlanCode = "premium"
)

// PlanType describes how a plan is billed.
type PlanType string

const (
	PlanTypeOneTime      PlanType = "one_time"
	PlanTypeSubscription PlanType = "subscription"
	PlanTypeCancelled    PlanType = "cancelled"
)

// ExportFormat is a file format the export feature can produce.
type ExportFormat string

const (
	FormatPDF  ExportFormat = "pdf"
	FormatDOCX ExportFormat = "docx"
	FormatHTML ExportFormat = "html"
	FormatJSON ExportFormat = "json"
)

// UnlimitedUsage is the usage_limit sentinel for plans without a quota.
const UnlimitedUsage = -1

// subscriptionPeriodDays is the length of one paid period for recurring plans.
const subscriptionPeriodDays = 30

// PlanPolicy is the quota, expiry and feature access granted by a plan.
type PlanPolicy struct {
	Code           PlanCode       `json:"plan"`
	UsageLimit     int            `json:"usage_limit"`
	ExpiresInDays  int            `json:"expires_in_days"` // 0 means the entitlement never expires
	AllowedFormats []ExportFormat `json:"allowed_formats"`
	PlanType       PlanType       `json:"plan_type"`
}

// planCatalog is the single source of truth for plan quotas.
// Order matters: it is the order ValidPlanCodes reports.
var planCatalog = []PlanPolicy{
	{
		Code:           PlanBasic,
		UsageLimit:     1,
		AllowedFormats: []ExportFormat{FormatPDF},
		PlanType:       PlanTypeOneTime,
	},
	{
		Code:           PlanGold,
		UsageLimit:     10,
		ExpiresInDays:  subscriptionPeriodDays,
		AllowedFormats: []ExportFormat{FormatPDF, FormatDOCX},
		PlanType:       PlanTypeSubscription,
	},
	{
		Code:           PlanPro,
		UsageLimit:     10,
		ExpiresInDays:  subscriptionPeriodDays,
		AllowedFormats: []ExportFormat{FormatPDF, FormatDOCX},
		PlanType:       PlanTypeSubscription,
	},
	{
		Code:           PlanPremium,
		UsageLimit:     25,
		ExpiresInDays:  subscriptionPeriodDays,
		AllowedFormats: []ExportFormat{FormatPDF, FormatDOCX, FormatHTML, FormatJSON},
		PlanType:       PlanTypeSubscription,
	},
}

// ValidPlanCodes returns every plan code the catalog knows about.
func ValidPlanCodes() []PlanCode {
	codes := make([]PlanCode, 0, len(planCatalog))
	for _, p := range planCatalog {
		codes = append(codes, p.Code)
	}
	return codes
}

// ParsePlanCode normalizes user input into a PlanCode. It does not validate.
func ParsePlanCode(raw string) PlanCode {
	return PlanCode(strings.ToLower(strings.TrimSpace(raw)))
}

// ResolvePlanPolicy looks a plan code up in the catalog.
func ResolvePlanPolicy(code PlanCode) (PlanPolicy, error) {
	code = ParsePlanCode(string(code))
	for _, p := range planCatalog {
		if p.Code == code {
			return p.clone(), nil
		}
	}
	return PlanPolicy{}, &InvalidPlanError{Code: string(code), ValidPlans: ValidPlanCodes()}
}

func mustPlanPolicy(code PlanCode) PlanPolicy {
	p, err := ResolvePlanPolicy(code)
	if err != nil {
		panic(err)
	}
	return p
}

// clone keeps callers from mutating the catalog through the formats slice.
func (p PlanPolicy) clone() PlanPolicy {
	p.AllowedFormats = append([]ExportFormat(nil), p.AllowedFormats...)
	return p
}

// IsRecurring reports whether the plan grants a time-limited entitlement.
func (p PlanPolicy) IsRecurring() bool {
	return p.ExpiresInDays > 0
}

// AllowsFormat reports whether the plan may export the given format.
func (p PlanPolicy) AllowsFormat(format ExportFormat) bool {
	for _, f := range p.AllowedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Grant turns a policy into the entitlement for a payment made at paidAt.
func (p PlanPolicy) Grant(paidAt time.Time) Entitlement {
	ent := Entitlement{
		Plan:       p.Code,
		UsageLimit: p.UsageLimit,
		PlanType:   p.PlanType,
	}
	if p.IsRecurring() {
		expiresAt := paidAt.UTC().AddDate(0, 0, p.ExpiresInDays)
		ent.ExpiresAt = &expiresAt
	}
	return ent
}

// ParseExportFormat validates a format string.
func ParseExportFormat(raw string) (ExportFormat, bool) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FormatPDF, FormatDOCX, FormatHTML, FormatJSON:
		return f, true
	}
	return "", false
}

// RequiredPlanForFormat returns the cheapest plan that unlocks a format.
func RequiredPlanForFormat(format ExportFormat) PlanCode {
	for _, p := range planCatalog {
		if p.AllowsFormat(format) {
			return p.Code
		}
	}
	return PlanPremium
}
