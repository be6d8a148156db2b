package service

import (
	"context"
	"errors"
	"time"

	"cvperfect-server/internal/domain"
)

// maxCommitAttempts bounds compare-and-set retries when concurrent commits
// race on the same record.
const maxCommitAttempts = 3

type usageService struct {
	userRepo domain.UserRepository
	logger   domain.Logger
	now      func() time.Time
}

func NewUsageService(userRepo domain.UserRepository, logger domain.Logger) domain.UsageService {
	return &usageService{
		userRepo: userRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// Authorize reports whether one more usage unit may be spent. It never
// writes.
func (s *usageService) Authorize(ctx context.Context, email string) (*domain.UsageDecision, *domain.User, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	decision := domain.Authorize(user, s.now())
	if !decision.Allowed {
		s.logger.Info("Usage denied", "email", user.Email, "reason", decision.Reason,
			"usage_count", user.UsageCount, "usage_limit", user.UsageLimit)
	}
	return &decision, user, nil
}

// Commit spends one usage unit after the metered work succeeded. The gate is
// re-checked against fresh state, so usage_count never passes usage_limit.
func (s *usageService) Commit(ctx context.Context, email string) (*domain.User, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		user, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, err
		}

		decision := domain.Authorize(user, s.now())
		if !decision.Allowed {
			return nil, &domain.UsageDeniedError{Reason: decision.Reason}
		}

		updated, err := s.userRepo.IncrementUsage(ctx, user.Email, user.UsageCount)
		if errors.Is(err, domain.ErrUsageConflict) {
			s.logger.Debug("Usage commit lost a race, retrying", "email", user.Email, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("Usage committed", "email", updated.Email,
			"usage_count", updated.UsageCount, "usage_limit", updated.UsageLimit)
		return updated, nil
	}

	return nil, domain.ErrUsageConflict
}

// Reset clears the usage counter.
func (s *usageService) Reset(ctx context.Context, email string) (*domain.User, error) {
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.userRepo.ResetUsage(ctx, email)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Usage reset", "email", user.Email)
	return user, nil
}
