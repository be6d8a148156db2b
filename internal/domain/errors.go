package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrUsageConflict       = errors.New("usage count changed concurrently")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrGeneratorFailed     = errors.New("text generation failed")
	ErrInvalidFile         = errors.New("invalid file")
	ErrPaymentGateway      = errors.New("payment gateway unavailable")
)

// ValidationError represents a validation error with field and message information.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// InvalidPlanError is returned for plan codes missing from the catalog.
type InvalidPlanError struct {
	Code       string
	ValidPlans []PlanCode
}

func (e *InvalidPlanError) Error() string {
	valid := make([]string, len(e.ValidPlans))
	for i, p := range e.ValidPlans {
		valid[i] = string(p)
	}
	return fmt.Sprintf("invalid plan %q (valid plans: %s)", e.Code, strings.Join(valid, ", "))
}

// StorageError wraps a persistence failure that survived retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UsageDeniedError reports a usage gate denial to a feature caller.
type UsageDeniedError struct {
	Reason DenialReason
}

func (e *UsageDeniedError) Error() string {
	return "usage denied: " + string(e.Reason)
}

// PlanUpgradeRequiredError is returned when a plan does not include a format.
type PlanUpgradeRequiredError struct {
	Plan             PlanCode
	Format           ExportFormat
	AvailableFormats []ExportFormat
	RequiredPlan     PlanCode
}

func (e *PlanUpgradeRequiredError) Error() string {
	return fmt.Sprintf("format %q not available in %q plan", e.Format, e.Plan)
}
