package handler

import (
	"net/http"

	"cvperfect-server/internal/config"
	"cvperfect-server/internal/domain"
)

// UsageHandler exposes the two-phase usage gate and plan-gated exports
type UsageHandler struct {
	container *config.Container
	logger    domain.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(container *config.Container, logger domain.Logger) *UsageHandler {
	return &UsageHandler{
		container: container,
		logger:    logger,
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

type exportRequest struct {
	Email  string `json:"email"`
	Format string `json:"format"`
}

type usageResponse struct {
	Allowed    bool                `json:"allowed"`
	Reason     domain.DenialReason `json:"reason,omitempty"`
	Remaining  int                 `json:"remaining"`
	Plan       domain.PlanCode     `json:"plan"`
	UsageCount int                 `json:"usage_count"`
	UsageLimit int                 `json:"usage_limit"`
}

// Authorize reports whether the user may spend one more unit. A denial is
// a normal answer here, so it is returned with 200.
func (h *UsageHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	decision, user, err := h.container.UsageService.Authorize(r.Context(), req.Email)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		Remaining:  decision.Remaining,
		Plan:       user.Plan,
		UsageCount: user.UsageCount,
		UsageLimit: user.UsageLimit,
	})
}

// Commit spends one unit after the caller's work succeeded
func (h *UsageHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	user, err := h.container.UsageService.Commit(r.Context(), req.Email)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Allowed:    true,
		Remaining:  user.RemainingUsage(),
		Plan:       user.Plan,
		UsageCount: user.UsageCount,
		UsageLimit: user.UsageLimit,
	})
}

// Export checks the user's plan allows the requested format
func (h *UsageHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	result, err := h.container.ExportService.Export(r.Context(), req.Email, req.Format)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
