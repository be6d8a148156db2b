package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cvperfect-server/internal/domain"
)

type entitlementService struct {
	userRepo domain.UserRepository
	ledger   domain.PaymentLedger
	gateway  domain.PaymentGateway
	logger   domain.Logger
	now      func() time.Time
}

func NewEntitlementService(
	userRepo domain.UserRepository,
	ledger domain.PaymentLedger,
	gateway domain.PaymentGateway,
	logger domain.Logger,
) domain.EntitlementService {
	return &entitlementService{
		userRepo: userRepo,
		ledger:   ledger,
		gateway:  gateway,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateCheckout validates the plan and e-mail and opens a checkout session.
func (s *entitlementService) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	policy, err := domain.ResolvePlanPolicy(req.Plan)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Origin) == "" {
		return nil, &domain.ValidationError{Field: "origin", Message: "is required"}
	}

	req.Plan = policy.Code
	req.Email = domain.NormalizeEmail(req.Email)

	sess, err := s.gateway.CreateCheckoutSession(ctx, req, policy)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Checkout session created", "plan", policy.Code, "email", req.Email, "session_id", sess.ID)
	return sess, nil
}

// HandleWebhook verifies and applies a payment event. Deliveries are
// idempotent: a reference found in the payment ledger is never applied
// twice. Any returned error means nothing was granted.
func (s *entitlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.WebhookResult, error) {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("Webhook rejected", "error", err)
		return nil, err
	}

	result := &domain.WebhookResult{Received: true, Event: event.Type}

	switch event.Kind {
	case domain.EventCheckoutCompleted, domain.EventSubscriptionRenewed:
		if !event.Paid {
			s.logger.Info("Webhook payment not completed, skipping", "event", event.Type, "reference", event.Reference)
			result.Ignored = true
			return result, nil
		}

		email, err := s.eventEmail(ctx, event)
		if err != nil {
			return nil, err
		}

		policy := domain.PolicyForAmount(event.Amount)
		user, already, err := s.provision(ctx, email, policy, domain.PaymentRecord{
			Reference:      event.Reference,
			Amount:         event.Amount,
			CustomerID:     event.CustomerID,
			SubscriptionID: event.SubscriptionID,
			PaidAt:         s.paidAt(event.PaidAt),
		})
		if err != nil {
			s.logger.Error("Failed to apply payment", err, "event", event.Type, "reference", event.Reference)
			return nil, err
		}
		result.AlreadyProcessed = already
		result.Plan = string(user.Plan)

	case domain.EventSubscriptionCancelled:
		email, err := s.eventEmail(ctx, event)
		if err != nil {
			return nil, err
		}
		err = s.userRepo.MarkCancelled(ctx, email, event.PeriodEnd)
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Warn("Cancellation for unknown user", "email", email, "subscription", event.SubscriptionID)
			result.Ignored = true
			return result, nil
		}
		if err != nil {
			s.logger.Error("Failed to cancel subscription", err, "email", email)
			return nil, err
		}
		s.logger.Info("Subscription cancelled", "email", email, "subscription", event.SubscriptionID)

	default:
		s.logger.Debug("Webhook event ignored", "event", event.Type)
		result.Ignored = true
	}

	return result, nil
}

// eventEmail resolves the payer address, falling back to the gateway's
// customer record when the event does not carry it.
func (s *entitlementService) eventEmail(ctx context.Context, event *domain.PaymentEvent) (string, error) {
	email := event.Email
	if email == "" && event.CustomerID != "" {
		found, err := s.gateway.CustomerEmail(ctx, event.CustomerID)
		if err != nil {
			return "", err
		}
		email = found
	}
	if err := domain.ValidateEmail(email); err != nil {
		return "", fmt.Errorf("event %s has no usable e-mail: %w", event.Reference, err)
	}
	return domain.NormalizeEmail(email), nil
}

// ProvisionFromSession grants the plan paid for in a checkout session the
// success page reports. The session is authoritative: a requested plan or
// e-mail that disagrees with what was paid is rejected.
func (s *entitlementService) ProvisionFromSession(ctx context.Context, req domain.ProvisionRequest) (*domain.User, error) {
	var requested *domain.PlanPolicy
	if strings.TrimSpace(req.Plan) != "" {
		policy, err := domain.PolicyForPlanCode(req.Plan)
		if err != nil {
			return nil, err
		}
		requested = &policy
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, &domain.ValidationError{Field: "session_id", Message: "is required"}
	}

	sess, err := s.gateway.VerifySession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Paid {
		return nil, domain.ErrPaymentNotCompleted
	}

	policy, err := sessionPolicy(sess)
	if err != nil {
		return nil, err
	}
	if requested != nil && requested.Code != policy.Code {
		s.logger.Warn("Requested plan does not match paid session",
			"session_id", sess.SessionID, "requested", requested.Code, "paid", policy.Code)
		return nil, &domain.ValidationError{Field: "plan", Message: fmt.Sprintf("does not match the paid session (%s)", policy.Code)}
	}

	email, err := sessionEmail(sess, req.Email)
	if err != nil {
		s.logger.Warn("Requested e-mail does not match paid session", "session_id", sess.SessionID)
		return nil, err
	}

	user, _, err := s.provision(ctx, email, policy, domain.PaymentRecord{
		Reference:      sess.SessionID,
		Amount:         sess.Amount,
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
		PaidAt:         s.paidAt(sess.PaidAt),
	})
	return user, err
}

// sessionPolicy is the plan recorded on the session, or the amount tier for
// sessions created without metadata.
func sessionPolicy(sess *domain.VerifiedSession) (domain.PlanPolicy, error) {
	if sess.Plan == "" {
		return domain.PolicyForAmount(sess.Amount), nil
	}
	return domain.ResolvePlanPolicy(sess.Plan)
}

// sessionEmail returns the payer address. A requested address must match
// the metadata e-mail or the one the customer typed at checkout.
func sessionEmail(sess *domain.VerifiedSession, requested string) (string, error) {
	var known []string
	for _, e := range []string{sess.PayerEmail, sess.Email} {
		if domain.ValidateEmail(e) == nil {
			known = append(known, domain.NormalizeEmail(e))
		}
	}
	if len(known) == 0 {
		return "", &domain.ValidationError{Field: "email", Message: "paid session carries no e-mail"}
	}
	if strings.TrimSpace(requested) == "" {
		return known[0], nil
	}

	want := domain.NormalizeEmail(requested)
	for _, e := range known {
		if e == want {
			return e, nil
		}
	}
	return "", &domain.ValidationError{Field: "email", Message: "does not match the paid session"}
}

func (s *entitlementService) paidAt(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// provision claims the payment reference in the ledger and writes the
// entitlement. The bool reports a reference that was applied before. A failed
// write releases the claim so a redelivery can retry.
func (s *entitlementService) provision(
	ctx context.Context,
	email string,
	policy domain.PlanPolicy,
	payment domain.PaymentRecord,
) (*domain.User, bool, error) {
	claimed, err := s.ledger.Claim(ctx, domain.ProcessedPayment{
		Reference: payment.Reference,
		Email:     email,
		Plan:      policy.Code,
		Amount:    payment.Amount,
		PaidAt:    payment.PaidAt,
	})
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		s.logger.Info("Payment already processed, skipping", "email", email, "reference", payment.Reference)
		existing, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	// Records written before the ledger existed carry the reference only here.
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		s.release(ctx, payment.Reference)
		return nil, false, err
	}
	if existing != nil && existing.StripeSessionID == payment.Reference {
		s.logger.Info("Payment already processed, skipping", "email", email, "reference", payment.Reference)
		return existing, true, nil
	}

	user, err := s.userRepo.UpsertByEmail(ctx, email, policy.Grant(payment.PaidAt), payment)
	if err != nil {
		s.release(ctx, payment.Reference)
		return nil, false, err
	}
	return user, false, nil
}

func (s *entitlementService) release(ctx context.Context, reference string) {
	if err := s.ledger.Release(ctx, reference); err != nil {
		s.logger.Error("Failed to release payment claim", err, "reference", reference)
	}
}

// GetEntitlement returns the record together with the current gate decision.
func (s *entitlementService) GetEntitlement(ctx context.Context, email string) (*domain.EntitlementView, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	view := &domain.EntitlementView{
		User:           user,
		Decision:       domain.Authorize(user, s.now()),
		AllowedFormats: []domain.ExportFormat{},
	}
	if policy, err := domain.ResolvePlanPolicy(user.Plan); err == nil {
		view.AllowedFormats = policy.AllowedFormats
	} else {
		s.logger.Warn("Stored plan missing from catalog", "email", user.Email, "plan", user.Plan)
	}
	return view, nil
}

// ListUsers returns records for the admin listing.
func (s *entitlementService) ListUsers(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	if filter.Plan != "" {
		policy, err := domain.ResolvePlanPolicy(filter.Plan)
		if err != nil {
			return nil, err
		}
		filter.Plan = policy.Code
	}
	return s.userRepo.List(ctx, filter)
}
