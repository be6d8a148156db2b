package service

import (
	"context"
	"fmt"
	"time"

	"cvperfect-server/internal/domain"

	"github.com/google/uuid"
)

type exportService struct {
	userRepo domain.UserRepository
	logger   domain.Logger
	now      func() time.Time
	newID    func() string
}

func NewExportService(userRepo domain.UserRepository, logger domain.Logger) domain.ExportService {
	return &exportService{
		userRepo: userRepo,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Export checks the user's plan allows the format. Exports do not spend
// usage units.
func (s *exportService) Export(ctx context.Context, email string, rawFormat string) (*domain.ExportResult, error) {
	format, ok := domain.ParseExportFormat(rawFormat)
	if !ok {
		return nil, &domain.ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", rawFormat)}
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	// Exports do not consume usage, so only expiry denies them.
	now := s.now()
	if decision := domain.Authorize(user, now); decision.Reason == domain.DenialExpired {
		return nil, &domain.UsageDeniedError{Reason: domain.DenialExpired}
	}

	policy, err := domain.ResolvePlanPolicy(user.Plan)
	if err != nil {
		s.logger.Warn("Stored plan missing from catalog, using basic", "email", user.Email, "plan", user.Plan)
		policy, _ = domain.ResolvePlanPolicy(domain.PlanBasic)
	}

	if !policy.AllowsFormat(format) {
		return nil, &domain.PlanUpgradeRequiredError{
			Plan:             policy.Code,
			Format:           format,
			AvailableFormats: policy.AllowedFormats,
			RequiredPlan:     domain.RequiredPlanForFormat(format),
		}
	}

	result := &domain.ExportResult{
		OK:         true,
		File:       fmt.Sprintf("cv-%s.%s", s.newID(), format),
		Format:     format,
		Plan:       policy.Code,
		ExportedAt: now.UTC(),
	}
	s.logger.Info("CV exported", "email", user.Email, "format", format, "file", result.File)
	return result, nil
}
