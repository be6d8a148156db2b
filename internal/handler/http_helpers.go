package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cvperfect-server/internal/domain"
	apperrors "cvperfect-server/pkg/errors"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// maxJSONBody caps JSON request bodies; CV text is the largest field.
const maxJSONBody = 1 << 20

// RequestIDFromContext returns the id assigned by RequestLogger.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// writeError writes an error response (helper function)
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidationError("Request body is required")
		}
		return apperrors.NewValidationError("Invalid request body", err.Error())
	}
	return nil
}

// writeAppError maps err onto the structured error body and logs server-side
// failures.
func writeAppError(w http.ResponseWriter, r *http.Request, logger domain.Logger, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()))
	}
	writeJSON(w, appErr.StatusCode, appErr.Body())
}

// toAppError translates domain errors into HTTP-facing AppErrors. Typed
// errors are matched before sentinels because sentinels may wrap them.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var planErr *domain.InvalidPlanError
	if errors.As(err, &planErr) {
		return apperrors.NewInvalidPlanError(fmt.Sprintf("Invalid plan %q", planErr.Code), err).
			WithField("valid_plans", planErr.ValidPlans)
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		e := apperrors.NewValidationError(valErr.Error())
		if valErr.Field != "" {
			e.WithField("field", valErr.Field)
		}
		return e
	}

	var denied *domain.UsageDeniedError
	if errors.As(err, &denied) {
		msg := "Usage limit reached, upgrade your plan"
		if denied.Reason == domain.DenialExpired {
			msg = "Your plan has expired"
		}
		return apperrors.NewPaymentRequiredError(msg, err).WithField("reason", denied.Reason)
	}

	var upgrade *domain.PlanUpgradeRequiredError
	if errors.As(err, &upgrade) {
		return apperrors.NewUpgradeRequiredError(
			fmt.Sprintf("Format %s is not available in the %s plan", upgrade.Format, upgrade.Plan), err).
			WithField("current_plan", upgrade.Plan).
			WithField("available_formats", upgrade.AvailableFormats).
			WithField("required_plan", upgrade.RequiredPlan)
	}

	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		return apperrors.NewInternalError("Storage unavailable", err)
	}

	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NewNotFoundError("User not found")
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		return apperrors.NewPaymentRequiredError("Payment not completed", err)
	case errors.Is(err, domain.ErrInvalidSignature):
		return apperrors.NewValidationError("Webhook signature verification failed")
	case errors.Is(err, domain.ErrInvalidFile):
		return apperrors.NewValidationError("Invalid file", err.Error())
	case errors.Is(err, domain.ErrUsageConflict):
		return apperrors.NewConflictError("Usage changed concurrently, retry", err)
	case errors.Is(err, domain.ErrPaymentGateway):
		return apperrors.NewNetworkError("Payment provider unavailable", err)
	case errors.Is(err, domain.ErrGeneratorFailed):
		return apperrors.NewNetworkError("Text generation failed, no usage was charged", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewNetworkError("Upstream timeout", err)
	}

	return apperrors.NewInternalError("Internal server error", err)
}
