package handler

import (
	"io"
	"net/http"
	"strings"

	"cvperfect-server/internal/config"
	"cvperfect-server/internal/domain"
)

// maxWebhookBody is the largest webhook payload accepted from Stripe.
const maxWebhookBody = 65536

// BillingHandler handles checkout, payment webhooks and entitlement reads
type BillingHandler struct {
	container *config.Container
	logger    domain.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(container *config.Container, logger domain.Logger) *BillingHandler {
	return &BillingHandler{
		container: container,
		logger:    logger,
	}
}

// CreateCheckout starts a hosted checkout for the requested plan
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	req.Origin = h.checkoutOrigin(r.Header.Get("Origin"))

	session, err := h.container.EntitlementService.CreateCheckout(r.Context(), req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// checkoutOrigin returns the Origin header when it is an allowed frontend,
// otherwise the configured frontend origin.
func (h *BillingHandler) checkoutOrigin(header string) string {
	if h.container.Config == nil {
		return ""
	}
	origin := strings.TrimRight(strings.TrimSpace(header), "/")
	if origin != "" {
		for _, allowed := range allowedOrigins(h.container.Config) {
			if origin == strings.TrimRight(allowed, "/") {
				return origin
			}
		}
		h.logger.Warn("Checkout origin not allowed, using frontend origin", "origin", origin)
	}
	return h.container.Config.GetFrontendOrigin()
}

// StripeWebhook verifies and applies a payment event. The body is read raw
// because the signature covers the exact bytes.
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "Failed to read request body")
		return
	}

	result, err := h.container.EntitlementService.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ProvisionFromSession provisions a user straight from a paid checkout
// session, used by the success page before the webhook lands.
func (h *BillingHandler) ProvisionFromSession(w http.ResponseWriter, r *http.Request) {
	var req domain.ProvisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	user, err := h.container.EntitlementService.ProvisionFromSession(r.Context(), req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// GetEntitlement returns the current entitlement for ?email=
func (h *BillingHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	view, err := h.container.EntitlementService.GetEntitlement(r.Context(), email)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
