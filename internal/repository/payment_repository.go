package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cvperfect-server/internal/domain"

	"github.com/supabase-community/supabase-go"
)

const paymentsTable = "processed_payments"

// uniqueViolation is the Postgres code PostgREST reports for a duplicate key.
const uniqueViolation = "(23505)"

// SupabasePaymentRepository implements domain.PaymentLedger on the
// `processed_payments` table, whose `reference` column is unique.
type SupabasePaymentRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
	retry          retryPolicy
	now            func() time.Time
}

func NewSupabasePaymentRepository(
	supabaseClient domain.SupabaseClient,
	logger domain.Logger,
	retries int,
	backoff time.Duration,
) *SupabasePaymentRepository {
	return &SupabasePaymentRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
		retry:          retryPolicy{retries: retries, backoff: backoff},
		now:            time.Now,
	}
}

func (r *SupabasePaymentRepository) db() (*supabase.Client, error) {
	client := r.supabaseClient.DB()
	if client == nil {
		return nil, &domain.StorageError{Op: "connect", Err: fmt.Errorf("supabase client not initialized")}
	}
	return client, nil
}

// Claim inserts the ledger row. A duplicate reference means the payment was
// already applied and yields false. The insert is not retried: a resend after
// an ambiguous failure would look like a duplicate.
func (r *SupabasePaymentRepository) Claim(ctx context.Context, payment domain.ProcessedPayment) (bool, error) {
	client, err := r.db()
	if err != nil {
		return false, err
	}

	data := map[string]interface{}{
		"reference":    payment.Reference,
		"email":        domain.NormalizeEmail(payment.Email),
		"plan":         payment.Plan,
		"amount":       payment.Amount,
		"paid_at":      payment.PaidAt.UTC(),
		"processed_at": r.now().UTC(),
	}

	_, _, err = client.From(paymentsTable).
		Insert(data, false, "", "minimal", "").
		Execute()
	if err != nil {
		if strings.Contains(err.Error(), uniqueViolation) {
			r.logger.Info("Payment reference already claimed", "reference", payment.Reference)
			return false, nil
		}
		return false, &domain.StorageError{Op: "claim payment", Err: err}
	}
	return true, nil
}

// Release deletes the ledger row for reference.
func (r *SupabasePaymentRepository) Release(ctx context.Context, reference string) error {
	client, err := r.db()
	if err != nil {
		return err
	}

	return r.retry.do(ctx, r.logger, "release payment", func() error {
		_, _, execErr := client.From(paymentsTable).
			Delete("minimal", "").
			Eq("reference", reference).
			Execute()
		return execErr
	})
}
