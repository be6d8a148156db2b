package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cvperfect-server/internal/domain"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const usersTable = "users"

// SupabaseUserRepository implements domain.UserRepository on the `users` table.
type SupabaseUserRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
	retry          retryPolicy
	now            func() time.Time
}

// NewSupabaseUserRepository creates a user repository. Idempotent writes are
// retried up to retries extra times, starting at backoff.
func NewSupabaseUserRepository(
	supabaseClient domain.SupabaseClient,
	logger domain.Logger,
	retries int,
	backoff time.Duration,
) *SupabaseUserRepository {
	return &SupabaseUserRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
		retry:          retryPolicy{retries: retries, backoff: backoff},
		now:            time.Now,
	}
}

func (r *SupabaseUserRepository) db() (*supabase.Client, error) {
	client := r.supabaseClient.DB()
	if client == nil {
		return nil, &domain.StorageError{Op: "connect", Err: fmt.Errorf("supabase client not initialized")}
	}
	return client, nil
}

// FindByEmail returns the record for an e-mail or domain.ErrUserNotFound.
func (r *SupabaseUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	client, err := r.db()
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(usersTable).
		Select("*", "", false).
		Eq("email", domain.NormalizeEmail(email)).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, &domain.StorageError{Op: "find user", Err: err}
	}

	return firstUser(data)
}

// UpsertByEmail writes a fresh billing period for the e-mail in a single
// conflict-on-email upsert: plan fields are overwritten and usage_count is
// reset to 0.
func (r *SupabaseUserRepository) UpsertByEmail(
	ctx context.Context,
	email string,
	ent domain.Entitlement,
	payment domain.PaymentRecord,
) (*domain.User, error) {
	client, err := r.db()
	if err != nil {
		return nil, err
	}

	paidAt := payment.PaidAt.UTC()
	data := map[string]interface{}{
		"email":                  domain.NormalizeEmail(email),
		"plan":                   ent.Plan,
		"plan_type":              ent.PlanType,
		"plan_price":             payment.Amount,
		"usage_limit":            ent.UsageLimit,
		"usage_count":            0,
		"expires_at":             ent.ExpiresAt,
		"stripe_session_id":      payment.Reference,
		"stripe_customer_id":     nullIfEmpty(payment.CustomerID),
		"stripe_subscription_id": nullIfEmpty(payment.SubscriptionID),
		"last_payment_at":        paidAt,
		"updated_at":             r.now().UTC(),
	}

	var user *domain.User
	err = r.retry.do(ctx, r.logger, "upsert user", func() error {
		resp, _, execErr := client.From(usersTable).
			Upsert(data, "email", "representation", "").
			Execute()
		if execErr != nil {
			return execErr
		}
		u, decodeErr := firstUser(resp)
		if decodeErr != nil {
			return decodeErr
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("User entitlement upserted",
		"email", user.Email,
		"plan", user.Plan,
		"usage_limit", user.UsageLimit,
		"reference", payment.Reference)
	return user, nil
}

// IncrementUsage bumps usage_count by one only if it still equals
// expectedCount. A lost race returns domain.ErrUsageConflict. The write is
// not retried: a resend after an ambiguous failure could count twice.
func (r *SupabaseUserRepository) IncrementUsage(ctx context.Context, email string, expectedCount int) (*domain.User, error) {
	client, err := r.db()
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"usage_count": expectedCount + 1,
		"updated_at":  r.now().UTC(),
	}
	resp, _, err := client.From(usersTable).
		Update(data, "representation", "").
		Eq("email", domain.NormalizeEmail(email)).
		Eq("usage_count", strconv.Itoa(expectedCount)).
		Execute()
	if err != nil {
		return nil, &domain.StorageError{Op: "increment usage", Err: err}
	}

	user, err := firstUser(resp)
	if err == domain.ErrUserNotFound {
		return nil, domain.ErrUsageConflict
	}
	return user, err
}

// ResetUsage sets usage_count back to 0 without touching the plan.
func (r *SupabaseUserRepository) ResetUsage(ctx context.Context, email string) (*domain.User, error) {
	client, err := r.db()
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"usage_count": 0,
		"updated_at":  r.now().UTC(),
	}

	var user *domain.User
	err = r.retry.do(ctx, r.logger, "reset usage", func() error {
		resp, _, execErr := client.From(usersTable).
			Update(data, "representation", "").
			Eq("email", domain.NormalizeEmail(email)).
			Execute()
		if execErr != nil {
			return execErr
		}
		user, execErr = firstUser(resp)
		if execErr == domain.ErrUserNotFound {
			return nil
		}
		return execErr
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// MarkCancelled flags a subscription as cancelled. The user keeps access
// until expiresAt, the end of the period already paid for.
func (r *SupabaseUserRepository) MarkCancelled(ctx context.Context, email string, expiresAt *time.Time) error {
	client, err := r.db()
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"plan_type":  domain.PlanTypeCancelled,
		"updated_at": r.now().UTC(),
	}
	if expiresAt != nil {
		data["expires_at"] = expiresAt.UTC()
	}

	var matched bool
	err = r.retry.do(ctx, r.logger, "cancel subscription", func() error {
		resp, _, execErr := client.From(usersTable).
			Update(data, "representation", "").
			Eq("email", domain.NormalizeEmail(email)).
			Execute()
		if execErr != nil {
			return execErr
		}
		var rows []domain.User
		if err := json.Unmarshal(resp, &rows); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		matched = len(rows) > 0
		return nil
	})
	if err != nil {
		return err
	}
	if !matched {
		return domain.ErrUserNotFound
	}
	return nil
}

// List returns users ordered by most recent payment.
func (r *SupabaseUserRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	client, err := r.db()
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := client.From(usersTable).Select("*", "", false)
	if filter.Plan != "" {
		query = query.Eq("plan", string(filter.Plan))
	}
	data, _, err := query.
		Order("last_payment_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, &domain.StorageError{Op: "list users", Err: err}
	}

	var users []*domain.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, &domain.StorageError{Op: "list users", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return users, nil
}

func firstUser(data []byte) (*domain.User, error) {
	if len(data) == 0 {
		return nil, domain.ErrUserNotFound
	}
	var users []domain.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, &domain.StorageError{Op: "decode user", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if len(users) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return &users[0], nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
