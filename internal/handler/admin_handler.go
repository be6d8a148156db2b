package handler

import (
	"net/http"
	"strconv"

	"cvperfect-server/internal/config"
	"cvperfect-server/internal/domain"
)

// AdminHandler exposes admin-only endpoints protected by X-Admin-Secret.
// These endpoints are intended for internal support tooling and should not be exposed publicly without additional safeguards.
type AdminHandler struct {
	container *config.Container
	logger    domain.Logger
}

func NewAdminHandler(container *config.Container, logger domain.Logger) *AdminHandler {
	return &AdminHandler{
		container: container,
		logger:    logger,
	}
}

// ListUsers lists entitlement records, newest payment first.
//
// Query: ?plan=<code> filters by plan, ?limit=<n> caps the page (default 100).
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter := domain.UserFilter{Plan: domain.PlanCode(r.URL.Query().Get("plan"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	users, err := h.container.EntitlementService.ListUsers(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// ResetUsage zeroes a user's usage count without touching the plan.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	user, err := h.container.UsageService.Reset(r.Context(), req.Email)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Usage reset by admin", "email", user.Email, "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}
