package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cvperfect-server/internal/domain"
)

func newTestUsageService(repo *mockUserRepo) *usageService {
	svc := NewUsageService(repo, NewMockLogger()).(*usageService)
	svc.now = fixedNow
	return svc
}

func TestUsageService_Authorize(t *testing.T) {
	repo := newMockUserRepo()
	repo.put(&domain.User{Email: "basic@example.com", Plan: domain.PlanBasic, UsageCount: 1, UsageLimit: 1})
	repo.put(&domain.User{Email: "expired@example.com", Plan: domain.PlanPro, UsageCount: 10, UsageLimit: 10,
		ExpiresAt: timePtr(fixedNow().Add(-1))})
	repo.put(&domain.User{Email: "pro@example.com", Plan: domain.PlanPro, UsageCount: 4, UsageLimit: 10,
		ExpiresAt: timePtr(fixedNow().AddDate(0, 0, 5))})
	svc := newTestUsageService(repo)

	tests := []struct {
		email     string
		allowed   bool
		reason    domain.DenialReason
		remaining int
	}{
		{"basic@example.com", false, domain.DenialLimitExceeded, 0},
		{"expired@example.com", false, domain.DenialExpired, 0},
		{"PRO@example.com", true, "", 6},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			decision, user, err := svc.Authorize(context.Background(), tt.email)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if user == nil {
				t.Fatal("expected user")
			}
			if decision.Allowed != tt.allowed || decision.Reason != tt.reason || decision.Remaining != tt.remaining {
				t.Fatalf("unexpected decision %+v", decision)
			}
		})
	}

	if _, _, err := svc.Authorize(context.Background(), "ghost@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUsageService_CommitIncrements(t *testing.T) {
	repo := newMockUserRepo()
	repo.put(&domain.User{Email: "jane@example.com", Plan: domain.PlanPro, UsageCount: 2, UsageLimit: 10})
	svc := newTestUsageService(repo)

	user, err := svc.Commit(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.UsageCount != 3 {
		t.Fatalf("expected count 3, got %d", user.UsageCount)
	}
}

func TestUsageService_CommitRefusedWhenExhausted(t *testing.T) {
	repo := newMockUserRepo()
	repo.put(&domain.User{Email: "jane@example.com", Plan: domain.PlanBasic, UsageCount: 1, UsageLimit: 1})
	svc := newTestUsageService(repo)

	_, err := svc.Commit(context.Background(), "jane@example.com")
	var denied *domain.UsageDeniedError
	if !errors.As(err, &denied) || denied.Reason != domain.DenialLimitExceeded {
		t.Fatalf("expected limit_exceeded denial, got %v", err)
	}
	if repo.get("jane@example.com").UsageCount != 1 {
		t.Fatal("expected usage count unchanged")
	}
}

func TestUsageService_CommitRetriesLostRace(t *testing.T) {
	repo := newMockUserRepo()
	repo.put(&domain.User{Email: "jane@example.com", Plan: domain.PlanPro, UsageCount: 0, UsageLimit: 10})
	repo.conflicts = 2
	svc := newTestUsageService(repo)

	user, err := svc.Commit(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if user.UsageCount != 1 {
		t.Fatalf("expected count 1, got %d", user.UsageCount)
	}

	repo.conflicts = maxCommitAttempts
	if _, err := svc.Commit(context.Background(), "jane@example.com"); !errors.Is(err, domain.ErrUsageConflict) {
		t.Fatalf("expected ErrUsageConflict after exhausting retries, got %v", err)
	}
}

func TestUsageService_ConcurrentCommitsNeverExceedLimit(t *testing.T) {
	repo := newMockUserRepo()
	repo.put(&domain.User{Email: "jane@example.com", Plan: domain.PlanPro, UsageCount: 7, UsageLimit: 10})
	svc := newTestUsageService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Commit(context.Background(), "jane@example.com")
		}()
	}
	wg.Wait()

	if got := repo.get("jane@example.com").UsageCount; got > 10 {
		t.Fatalf("usage count %d exceeded limit 10", got)
	}
}

func TestUsageService_Reset(t *testing.T) {
	repo := newMockUserRepo()
	repo.put(&domain.User{Email: "jane@example.com", Plan: domain.PlanPro, UsageCount: 10, UsageLimit: 10})
	svc := newTestUsageService(repo)

	user, err := svc.Reset(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.UsageCount != 0 || user.Plan != domain.PlanPro {
		t.Fatalf("expected count reset with plan kept, got %+v", user)
	}

	if _, err := svc.Reset(context.Background(), "bad"); err == nil {
		t.Fatal("expected validation error")
	}
}
