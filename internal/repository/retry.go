package repository

import (
	"context"
	"time"

	"cvperfect-server/internal/domain"
)

// retryPolicy bounds how often an idempotent write is re-sent.
type retryPolicy struct {
	retries int
	backoff time.Duration
}

// do runs fn once plus up to p.retries more times, doubling the wait after
// each failure. Only idempotent operations may be passed in.
func (p retryPolicy) do(ctx context.Context, logger domain.Logger, op string, fn func() error) error {
	wait := p.backoff
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.retries {
			break
		}
		logger.Warn("Storage write failed, retrying", "op", op, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return &domain.StorageError{Op: op, Err: ctx.Err()}
		case <-time.After(wait):
		}
		wait *= 2
	}
	return &domain.StorageError{Op: op, Err: err}
}
