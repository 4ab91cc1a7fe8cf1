// Package scheduler implements the cron-driven batch jobs: the fetch worker
// for claims awaiting their first POD fetch, and the retry scheduler that
// re-drives failed fetches on an exponential backoff schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/recoura/pod-engine/pkg/claims"
	"github.com/recoura/pod-engine/pkg/fetcher"
	"github.com/recoura/pod-engine/pkg/notify"
	"github.com/recoura/pod-engine/pkg/ratelimit"
)

// Prometheus metrics for retry scheduler runs.
var (
	retryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_retry_runs_total",
		Help: "Total retry scheduler runs by outcome",
	}, []string{"outcome"})

	retryClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_retry_claims_total",
		Help: "Total claims handled by the retry scheduler, by result",
	}, []string{"result"})

	retryRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pod_retry_run_duration_seconds",
		Help:    "Retry scheduler run duration in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	})
)

// Backoff is the fixed retry schedule, indexed by retry_count-1: the wait
// after the first failure is 1h, then 6h, 24h, 72h. A claim that exhausts
// the schedule is permanently ineligible.
var Backoff = [...]time.Duration{
	1 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
	72 * time.Hour,
}

// Config holds retry scheduler parameters.
type Config struct {
	// BatchSize caps claims processed per run.
	BatchSize int

	// MaxRetries is the retry budget per claim.
	MaxRetries int
}

// DefaultConfig returns the default retry scheduler configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:  30,
		MaxRetries: len(Backoff),
	}
}

// RetryScheduler re-drives failed POD fetches. One Run processes one batch,
// claim by claim, oldest attempt first. Per-claim failures are recorded on
// the claim; only storage-level failure aborts the run.
type RetryScheduler struct {
	store    claims.Store
	fetcher  *fetcher.Fetcher
	limiter  *ratelimit.Limiter
	notifier notify.Notifier
	lease    Lease
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRetryScheduler wires a retry scheduler. The lease may be nil only in
// tests; production runs need it to keep overlapping cron invocations from
// double-processing claims.
func NewRetryScheduler(
	store claims.Store,
	podFetcher *fetcher.Fetcher,
	limiter *ratelimit.Limiter,
	notifier notify.Notifier,
	lease Lease,
	cfg Config,
	logger zerolog.Logger,
) (*RetryScheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	if podFetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}

	return &RetryScheduler{
		store:    store,
		fetcher:  podFetcher,
		limiter:  limiter,
		notifier: notifier,
		lease:    lease,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run executes one scheduler pass and returns its stats. A nil error with
// empty stats means there was nothing to do (or another run holds the lease).
func (s *RetryScheduler) Run(ctx context.Context) (*Stats, error) {
	startTime := time.Now()
	defer func() {
		retryRunDuration.Observe(time.Since(startTime).Seconds())
	}()

	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx)
		if err != nil {
			retryRunsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("run lease: %w", err)
		}
		if !ok {
			s.logger.Warn().Msg("Another retry scheduler run holds the lease, skipping")
			retryRunsTotal.WithLabelValues("lease_held").Inc()
			return &Stats{}, nil
		}
		defer release()
	}

	s.logger.Info().
		Int("batch_size", s.config.BatchSize).
		Int("max_retries", s.config.MaxRetries).
		Msg("Retry scheduler starting")

	eligible, err := s.selectClaims(ctx)
	if err != nil {
		retryRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	stats := &Stats{}

	if len(eligible) == 0 {
		s.logger.Info().Msg("No failed PODs eligible for retry")
		retryRunsTotal.WithLabelValues("empty").Inc()
		return stats, nil
	}

	s.logger.Info().Int("claims", len(eligible)).Msg("Found claims to retry")

	for _, claim := range eligible {
		s.processRetry(ctx, claim, stats)
	}

	s.logSummary(stats, time.Since(startTime))
	retryRunsTotal.WithLabelValues("completed").Inc()

	return stats, nil
}

// selectClaims over-fetches candidates from storage and filters to backoff
// eligibility here; the backoff arithmetic is not pushed down to the store.
func (s *RetryScheduler) selectClaims(ctx context.Context) ([]claims.Claim, error) {
	candidates, err := s.store.GetRetryEligibleClaims(ctx, s.config.MaxRetries, s.config.BatchSize*2)
	if err != nil {
		return nil, fmt.Errorf("get retry eligible claims: %w", err)
	}

	eligible := make([]claims.Claim, 0, s.config.BatchSize)
	now := s.now()
	for _, claim := range candidates {
		if s.readyForRetry(claim, now) {
			eligible = append(eligible, claim)
			if len(eligible) >= s.config.BatchSize {
				break
			}
		}
	}

	return eligible, nil
}

// readyForRetry reports whether a claim is past its backoff interval.
func (s *RetryScheduler) readyForRetry(claim claims.Claim, now time.Time) bool {
	retryCount := claim.PODRetryCount

	// Never attempted: no backoff to wait out.
	if retryCount == 0 {
		return true
	}

	// Schedule exhausted: permanently ineligible.
	if retryCount >= len(Backoff) {
		return false
	}

	if claim.PODLastRetryAt == nil {
		return true
	}

	return !now.Before(claim.PODLastRetryAt.Add(Backoff[retryCount-1]))
}

// processRetry handles a single claim. Any error is recorded against the
// claim and in the stats; the batch always continues.
func (s *RetryScheduler) processRetry(ctx context.Context, claim claims.Claim, stats *Stats) {
	stats.Total++

	logger := s.logger.With().
		Str("claim_ref", claim.Reference).
		Str("tracking_number", claim.TrackingNumber).
		Str("carrier", claim.Carrier).
		Int("retry_count", claim.PODRetryCount).
		Logger()

	logger.Info().Int("attempt", claim.PODRetryCount+1).Msg("Retrying POD fetch")

	// A known-persistent error is not worth another carrier call. The first
	// retry still goes through in case the stored error was a fluke; after
	// that the claim is finalized on the spot. Skipping without finalizing
	// would reselect the claim on every run and never notify.
	if claim.PODRetryCount > 0 && IsPersistent(claim.PODFetchError) {
		logger.Info().Str("error", claim.PODFetchError).Msg("Skipping claim with persistent error")
		stats.SkippedPersistent++
		retryClaimsTotal.WithLabelValues("skipped_persistent").Inc()

		s.finalizeTerminal(ctx, claim, claim.PODFetchError, logger)
		stats.MaxRetriesReached++
		return
	}

	// Rate-limited carriers are skipped without burning a retry slot; the
	// claim stays eligible for the next run.
	if !s.limiter.CanExecute(claim.Carrier) {
		logger.Warn().Msg("Carrier rate limited, skipping claim")
		stats.SkippedRateLimit++
		retryClaimsTotal.WithLabelValues("skipped_rate_limit").Inc()
		return
	}

	var result *fetcher.Result
	err := s.limiter.ExecuteWithLimit(ctx, claim.Carrier, func(ctx context.Context) error {
		// Explicit retry: bypass the cache lookup, a cached failure window
		// is exactly what we are trying to get past.
		result = s.fetcher.FetchPOD(ctx, claim.TrackingNumber, claim.Carrier, fetcher.WithoutCache())
		return nil
	})

	var limited *ratelimit.RateLimitedError
	if errors.As(err, &limited) {
		// Lost the race for the last quota slot since the CanExecute check.
		logger.Warn().Time("retry_after", limited.RetryAfter).Msg("Carrier rate limited, skipping claim")
		stats.SkippedRateLimit++
		retryClaimsTotal.WithLabelValues("skipped_rate_limit").Inc()
		return
	}

	newCount := claim.PODRetryCount + 1
	now := s.now()

	if result != nil && result.Success {
		cleared := ""
		update := claims.PODUpdate{
			FetchStatus:   claims.PODFetchSuccess,
			PODURL:        &result.PODURL,
			FetchError:    &cleared,
			RecipientName: &result.PODData.RecipientName,
			SignatureURL:  &result.PODData.SignatureURL,
			RetryCount:    &newCount,
			LastRetryAt:   &now,
		}
		if err := s.store.UpdateClaimPODFields(ctx, claim.ID, update); err != nil {
			logger.Error().Err(err).Msg("Failed to record POD success")
			stats.Failed++
			retryClaimsTotal.WithLabelValues("failed").Inc()
			return
		}

		stats.Success++
		retryClaimsTotal.WithLabelValues("success").Inc()
		logger.Info().Int("attempts", newCount).Msg("POD fetched after retry")

		s.notifySuccess(ctx, claim, result.PODURL, logger)
		return
	}

	errText := "Unknown error"
	if result != nil && result.Err != "" {
		errText = result.Err
	}

	update := claims.PODUpdate{
		FetchStatus: claims.PODFetchFailed,
		FetchError:  &errText,
		RetryCount:  &newCount,
		LastRetryAt: &now,
	}
	if err := s.store.UpdateClaimPODFields(ctx, claim.ID, update); err != nil {
		logger.Error().Err(err).Msg("Failed to record POD failure")
	}

	stats.Failed++
	retryClaimsTotal.WithLabelValues("failed").Inc()
	logger.Warn().Str("error", errText).Msg("POD retry failed")

	// Terminal notification only for persistent errors: an exhausted budget
	// on transient failures stays silent, the POD may simply not exist yet.
	if newCount >= s.config.MaxRetries && IsPersistent(errText) {
		s.notifyFailure(ctx, claim, errText, logger)
		stats.MaxRetriesReached++
		logger.Info().Msg("Max retries reached, failure notification queued")
	}
}

// finalizeTerminal pins the retry count at the budget so the claim leaves
// the selection window for good, then sends the one terminal notification.
func (s *RetryScheduler) finalizeTerminal(ctx context.Context, claim claims.Claim, errText string, logger zerolog.Logger) {
	exhausted := s.config.MaxRetries
	now := s.now()
	update := claims.PODUpdate{
		FetchStatus: claims.PODFetchFailed,
		FetchError:  &errText,
		RetryCount:  &exhausted,
		LastRetryAt: &now,
	}
	if err := s.store.UpdateClaimPODFields(ctx, claim.ID, update); err != nil {
		logger.Error().Err(err).Msg("Failed to finalize exhausted claim")
		return
	}

	s.notifyFailure(ctx, claim, errText, logger)
	logger.Info().Msg("Retry budget exhausted on persistent error, failure notification queued")
}

// notifySuccess queues the pod_retrieved event. Notification problems are
// logged and swallowed; the fetch already succeeded.
func (s *RetryScheduler) notifySuccess(ctx context.Context, claim claims.Claim, podURL string, logger zerolog.Logger) {
	email, err := s.store.GetClientEmail(ctx, claim.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve client email for success notification")
		return
	}

	err = s.notifier.QueueNotification(ctx, email, notify.EventPODRetrieved, map[string]string{
		"claim_ref": claim.Reference,
		"carrier":   claim.Carrier,
		"pod_url":   podURL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to queue success notification")
	}
}

// notifyFailure queues the single terminal pod_failed event.
func (s *RetryScheduler) notifyFailure(ctx context.Context, claim claims.Claim, errText string, logger zerolog.Logger) {
	email, err := s.store.GetClientEmail(ctx, claim.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve client email for failure notification")
		return
	}

	err = s.notifier.QueueNotification(ctx, email, notify.EventPODFailed, map[string]string{
		"claim_ref": claim.Reference,
		"carrier":   claim.Carrier,
		"error":     errText,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to queue failure notification")
	}
}

func (s *RetryScheduler) logSummary(stats *Stats, duration time.Duration) {
	s.logger.Info().
		Dur("duration", duration).
		Int("total", stats.Total).
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Int("skipped_persistent", stats.SkippedPersistent).
		Int("skipped_rate_limit", stats.SkippedRateLimit).
		Int("max_retries_reached", stats.MaxRetriesReached).
		Float64("success_rate", stats.SuccessRate()).
		Msg("Retry scheduler finished")

	for _, usage := range s.limiter.AllStats() {
		if usage.Count == 0 {
			continue
		}
		s.logger.Info().
			Str("carrier", usage.Carrier).
			Int("count", usage.Count).
			Int("limit", usage.Limit).
			Float64("usage_percent", usage.UsagePercent).
			Msg("Carrier API usage")
	}
}
