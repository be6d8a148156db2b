package domain

import (
	"context"
	"strings"
	"time"
)

// User is the persisted entitlement record, one per e-mail.
type User struct {
	ID                   string     `json:"id,omitempty"`
	Email                string     `json:"email"`
	Plan                 PlanCode   `json:"plan"`
	PlanType             PlanType   `json:"plan_type"`
	PlanPrice            float64    `json:"plan_price"`
	UsageCount           int        `json:"usage_count"`
	UsageLimit           int        `json:"usage_limit"`
	ExpiresAt            *time.Time `json:"expires_at"`
	StripeSessionID      string     `json:"stripe_session_id"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	LastPaymentAt        *time.Time `json:"last_payment_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// PaymentRecord carries the audit facts of the payment behind an upsert.
type PaymentRecord struct {
	Reference      string // checkout session id or invoice id
	Amount         float64
	CustomerID     string
	SubscriptionID string
	PaidAt         time.Time
}

// UserFilter narrows admin listings.
type UserFilter struct {
	Plan  PlanCode
	Limit int
}

// NormalizeEmail is the only place e-mails are canonicalized.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the normalized address has a plausible shape.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" ||
		!strings.Contains(parts[1], ".") ||
		strings.HasPrefix(parts[1], ".") || strings.HasSuffix(parts[1], ".") {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	return nil
}

// UserRepository persists entitlement records.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpsertByEmail(ctx context.Context, email string, ent Entitlement, payment PaymentRecord) (*User, error)
	IncrementUsage(ctx context.Context, email string, expectedCount int) (*User, error)
	ResetUsage(ctx context.Context, email string) (*User, error)
	MarkCancelled(ctx context.Context, email string, expiresAt *time.Time) error
	List(ctx context.Context, filter UserFilter) ([]*User, error)
}
