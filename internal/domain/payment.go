package domain

import (
	"context"
	"time"
)

// PaymentEventKind classifies a verified webhook event.
type PaymentEventKind string

const (
	EventCheckoutCompleted     PaymentEventKind = "checkout_completed"
	EventSubscriptionRenewed   PaymentEventKind = "subscription_renewed"
	EventSubscriptionCancelled PaymentEventKind = "subscription_cancelled"
	EventIgnored               PaymentEventKind = "ignored"
)

// CheckoutRequest asks the gateway for a hosted checkout page.
type CheckoutRequest struct {
	Plan   PlanCode `json:"plan"`
	Email  string   `json:"email"`
	Origin string   `json:"-"`
}

// CheckoutSession is the hosted checkout the client is redirected to.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// VerifiedSession is what the gateway reports about a checkout session.
// Plan and PayerEmail come from the metadata written when the session was
// created and are empty for sessions opened elsewhere.
type VerifiedSession struct {
	SessionID      string
	Paid           bool
	Amount         float64
	Email          string
	CustomerID     string
	SubscriptionID string
	Plan           PlanCode
	PayerEmail     string
	PaidAt         time.Time
}

// PaymentEvent is a webhook event reduced to the facts entitlement needs.
type PaymentEvent struct {
	Kind           PaymentEventKind
	Type           string // raw gateway event type
	Reference      string // checkout session id or invoice id
	Paid           bool
	Amount         float64
	Email          string
	CustomerID     string
	SubscriptionID string
	PaidAt         time.Time // zero when the gateway did not report it
	PeriodEnd      *time.Time
}

// ProcessedPayment is a ledger entry for a payment that has been applied.
type ProcessedPayment struct {
	Reference string    `json:"reference"`
	Email     string    `json:"email"`
	Plan      PlanCode  `json:"plan"`
	Amount    float64   `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

// PaymentLedger remembers every payment reference ever applied, so a replayed
// session or invoice cannot grant a second period.
type PaymentLedger interface {
	// Claim reserves the reference. It returns false when the reference was
	// claimed before.
	Claim(ctx context.Context, payment ProcessedPayment) (bool, error)
	// Release drops a claim whose grant could not be written.
	Release(ctx context.Context, reference string) error
}

// WebhookResult is the acknowledgement returned to the gateway.
type WebhookResult struct {
	Received         bool   `json:"received"`
	Event            string `json:"event,omitempty"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
	Ignored          bool   `json:"ignored,omitempty"`
	Plan             string `json:"plan,omitempty"`
}

// ProvisionRequest is the direct user-provisioning call made by the
// success page after checkout.
type ProvisionRequest struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Plan      string `json:"plan"`
}

// EntitlementView is the read model for a user's current entitlement.
type EntitlementView struct {
	User           *User          `json:"user"`
	Decision       UsageDecision  `json:"decision"`
	AllowedFormats []ExportFormat `json:"allowed_formats"`
}

// PaymentGateway is the payment provider boundary.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest, policy PlanPolicy) (*CheckoutSession, error)
	VerifySession(ctx context.Context, sessionID string) (*VerifiedSession, error)
	ParseWebhook(payload []byte, signature string) (*PaymentEvent, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// EntitlementService turns payments into entitlements.
type EntitlementService interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
	ProvisionFromSession(ctx context.Context, req ProvisionRequest) (*User, error)
	GetEntitlement(ctx context.Context, email string) (*EntitlementView, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, error)
}

// UsageService is the two-phase usage gate: Authorize before work, Commit
// after the work succeeded.
type UsageService interface {
	Authorize(ctx context.Context, email string) (*UsageDecision, *User, error)
	Commit(ctx context.Context, email string) (*User, error)
	Reset(ctx context.Context, email string) (*User, error)
}
