package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cvperfect-server/internal/domain"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventInvoicePaid         = "invoice.payment_succeeded"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// StripeGateway implements domain.PaymentGateway on a per-instance Stripe
// client, so no package-level API key is ever set.
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	priceID       func(domain.PlanCode) string
	timeout       time.Duration
	logger        domain.Logger
}

// NewStripeGateway builds a gateway against the live Stripe API.
func NewStripeGateway(config domain.Config, logger domain.Logger) *StripeGateway {
	return newStripeGateway(config, logger, "")
}

// newStripeGateway allows tests to point the API backend at another URL.
func newStripeGateway(config domain.Config, logger domain.Logger, apiURL string) *StripeGateway {
	timeout := config.GetStripeTimeout()
	backendConfig := &stripe.BackendConfig{
		HTTPClient:    &http.Client{Timeout: timeout},
		LeveledLogger: &stripeLogger{logger: logger},
	}
	if apiURL != "" {
		backendConfig.URL = stripe.String(apiURL)
		backendConfig.MaxNetworkRetries = stripe.Int64(0)
	}
	api := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	sc := client.New(config.GetStripeSecretKey(), &stripe.Backends{
		API:     api,
		Connect: api,
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	return &StripeGateway{
		sc:            sc,
		webhookSecret: config.GetStripeWebhookSecret(),
		priceID:       config.GetStripePriceID,
		timeout:       timeout,
		logger:        logger,
	}
}

// CreateCheckoutSession opens a hosted checkout page for the plan. One-time
// plans accept card and BLIK; recurring plans are card-only subscriptions.
func (g *StripeGateway) CreateCheckoutSession(
	ctx context.Context,
	req domain.CheckoutRequest,
	policy domain.PlanPolicy,
) (*domain.CheckoutSession, error) {
	priceID := g.priceID(policy.Code)
	if priceID == "" {
		return nil, fmt.Errorf("%w: no price configured for plan %q", domain.ErrPaymentGateway, policy.Code)
	}

	mode := stripe.CheckoutSessionModePayment
	methods := []string{"card", "blik"}
	if policy.IsRecurring() {
		mode = stripe.CheckoutSessionModeSubscription
		methods = []string{"card"}
	}

	origin := strings.TrimRight(req.Origin, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice(methods),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(req.Email),
		SuccessURL: stripe.String(origin + "/success?session_id={CHECKOUT_SESSION_ID}&plan=" +
			url.QueryEscape(string(policy.Code))),
		CancelURL: stripe.String(origin + "/"),
	}
	params.AddMetadata("plan", string(policy.Code))
	params.AddMetadata("email", req.Email)
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		g.logger.Error("Stripe checkout session failed", err, "plan", policy.Code)
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}

	return &domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// VerifySession retrieves a checkout session, bounded by the configured
// Stripe timeout.
func (g *StripeGateway) VerifySession(ctx context.Context, sessionID string) (*domain.VerifiedSession, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	params.AddExpand("subscription")
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: session %s not found", domain.ErrPaymentNotCompleted, sessionID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}

	return &domain.VerifiedSession{
		SessionID:      sess.ID,
		Paid:           sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:         domain.AmountFromMinorUnits(sess.AmountTotal),
		Email:          sessionEmail(sess),
		CustomerID:     customerID(sess.Customer),
		SubscriptionID: subscriptionID(sess.Subscription),
		Plan:           domain.PlanCode(sess.Metadata["plan"]),
		PayerEmail:     sess.Metadata["email"],
		PaidAt:         sessionPaidAt(sess),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and reduces the event to
// a domain.PaymentEvent. Unhandled event types come back as EventIgnored.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", domain.ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		g.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	out := &domain.PaymentEvent{Kind: domain.EventIgnored, Type: string(event.Type)}

	switch string(event.Type) {
	case eventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, &domain.ValidationError{Field: "payload", Message: "invalid checkout session payload"}
		}
		out.Kind = domain.EventCheckoutCompleted
		out.Reference = sess.ID
		out.Paid = sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
		out.Amount = domain.AmountFromMinorUnits(sess.AmountTotal)
		out.Email = sessionEmail(&sess)
		out.CustomerID = customerID(sess.Customer)
		out.SubscriptionID = subscriptionID(sess.Subscription)
		out.PaidAt = unixTime(event.Created)

	case eventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, &domain.ValidationError{Field: "payload", Message: "invalid invoice payload"}
		}
		// The first invoice of a subscription is already covered by
		// checkout.session.completed.
		if inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
			return out, nil
		}
		out.Kind = domain.EventSubscriptionRenewed
		out.Reference = inv.ID
		out.Paid = inv.Paid
		out.Amount = domain.AmountFromMinorUnits(inv.AmountPaid)
		out.Email = inv.CustomerEmail
		out.CustomerID = customerID(inv.Customer)
		out.SubscriptionID = subscriptionID(inv.Subscription)
		out.PaidAt = unixTime(event.Created)
		if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
			out.PaidAt = unixTime(inv.StatusTransitions.PaidAt)
		}

	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, &domain.ValidationError{Field: "payload", Message: "invalid subscription payload"}
		}
		out.Kind = domain.EventSubscriptionCancelled
		out.Reference = sub.ID
		out.CustomerID = customerID(sub.Customer)
		out.SubscriptionID = sub.ID
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			out.PeriodEnd = &end
		}
	}

	return out, nil
}

// CustomerEmail looks up the e-mail Stripe holds for a customer.
func (g *StripeGateway) CustomerEmail(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", &domain.ValidationError{Field: "customer", Message: "is required"}
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := g.sc.Customers.Get(id, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	return cust.Email, nil
}

// sessionEmail prefers the address typed at checkout over the prefilled one.
func sessionEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}
	return sess.CustomerEmail
}

// sessionPaidAt is when the session's payment was made: the payment intent
// for one-time plans, the period start for subscriptions. Zero if neither was
// expanded.
func sessionPaidAt(sess *stripe.CheckoutSession) time.Time {
	if sess.PaymentIntent != nil && sess.PaymentIntent.Created > 0 {
		return unixTime(sess.PaymentIntent.Created)
	}
	if sess.Subscription != nil && sess.Subscription.CurrentPeriodStart > 0 {
		return unixTime(sess.Subscription.CurrentPeriodStart)
	}
	return time.Time{}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}

// stripeLogger routes stripe-go's internal logging through domain.Logger.
type stripeLogger struct {
	logger domain.Logger
}

func (l *stripeLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *stripeLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *stripeLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *stripeLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), nil, "component", "stripe")
}
