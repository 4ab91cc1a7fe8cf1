package fetcher

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy drives the bounded in-call retry loop around connector calls.
// This is the short-fuse retry for flaky calls within one fetch; the
// long-horizon retry across runs belongs to the scheduler.
type RetryPolicy struct {
	// MaxAttempts is the total number of connector calls, including the first.
	MaxAttempts int

	// BaseDelay is the backoff unit. Attempt n waits BaseDelay * 2^n before
	// attempt n+1.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the default bounded-retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// Delay returns the backoff before the attempt following zero-based attempt n.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * (1 << attempt)
}

// Wait blocks for the backoff after attempt n, honoring context cancellation.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff interrupted: %w", ctx.Err())
	case <-time.After(delay):
		return nil
	}
}
