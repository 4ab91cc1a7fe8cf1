package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/recoura/pod-engine/pkg/carrier"
	"github.com/recoura/pod-engine/pkg/claims"
	"github.com/recoura/pod-engine/pkg/fetcher"
	"github.com/recoura/pod-engine/pkg/notify"
	"github.com/recoura/pod-engine/pkg/ratelimit"
)

var workerClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pod_worker_claims_total",
	Help: "Total claims handled by the fetch worker, by result",
}, []string{"result"})

// WorkerConfig holds fetch worker parameters.
type WorkerConfig struct {
	// BatchSize caps claims processed per run.
	BatchSize int
}

// FetchWorker processes claims awaiting their first POD fetch. Failures here
// are left for the retry scheduler; the worker never retries across runs
// itself.
type FetchWorker struct {
	store    claims.Store
	fetcher  *fetcher.Fetcher
	limiter  *ratelimit.Limiter
	notifier notify.Notifier
	config   WorkerConfig
	logger   zerolog.Logger
}

// NewFetchWorker wires a fetch worker.
func NewFetchWorker(
	store claims.Store,
	podFetcher *fetcher.Fetcher,
	limiter *ratelimit.Limiter,
	notifier notify.Notifier,
	cfg WorkerConfig,
	logger zerolog.Logger,
) (*FetchWorker, error) {
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
		cfg.BatchSize = 50
	}

	return &FetchWorker{
		store:    store,
		fetcher:  podFetcher,
		limiter:  limiter,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Run executes one worker pass over pending claims.
func (w *FetchWorker) Run(ctx context.Context) (*Stats, error) {
	startTime := time.Now()

	w.logger.Info().Int("batch_size", w.config.BatchSize).Msg("Fetch worker starting")

	pending, err := w.store.GetPendingPODClaims(ctx, w.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("get pending claims: %w", err)
	}

	stats := &Stats{}

	if len(pending) == 0 {
		w.logger.Info().Msg("No pending POD fetches found")
		return stats, nil
	}

	w.logger.Info().Int("claims", len(pending)).Msg("Found pending POD fetches")

	for _, claim := range pending {
		w.processClaim(ctx, claim, stats)
	}

	w.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("total", stats.Total).
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Int("skipped_rate_limit", stats.SkippedRateLimit).
		Float64("success_rate", stats.SuccessRate()).
		Msg("Fetch worker finished")

	return stats, nil
}

func (w *FetchWorker) processClaim(ctx context.Context, claim claims.Claim, stats *Stats) {
	stats.Total++

	logger := w.logger.With().
		Str("claim_ref", claim.Reference).
		Str("tracking_number", claim.TrackingNumber).
		Str("carrier", claim.Carrier).
		Logger()

	carrierName := claim.Carrier
	if carrierName == "" {
		detected, ok := carrier.Detect(claim.TrackingNumber)
		if !ok {
			errText := fmt.Sprintf("Carrier not supported: could not detect carrier from tracking number %s", claim.TrackingNumber)
			w.markFailed(ctx, claim, errText, logger)
			stats.Failed++
			workerClaimsTotal.WithLabelValues("failed").Inc()
			return
		}
		carrierName = detected
		logger = logger.With().Str("detected_carrier", detected).Logger()
		logger.Info().Msg("Carrier detected from tracking number")
	}

	if !w.limiter.CanExecute(carrierName) {
		logger.Warn().Msg("Carrier rate limited, skipping claim")
		stats.SkippedRateLimit++
		workerClaimsTotal.WithLabelValues("skipped_rate_limit").Inc()
		return
	}

	var result *fetcher.Result
	err := w.limiter.ExecuteWithLimit(ctx, carrierName, func(ctx context.Context) error {
		result = w.fetcher.FetchPOD(ctx, claim.TrackingNumber, carrierName)
		return nil
	})

	var limited *ratelimit.RateLimitedError
	if errors.As(err, &limited) {
		logger.Warn().Time("retry_after", limited.RetryAfter).Msg("Carrier rate limited, skipping claim")
		stats.SkippedRateLimit++
		workerClaimsTotal.WithLabelValues("skipped_rate_limit").Inc()
		return
	}

	if result != nil && result.Success {
		update := claims.PODUpdate{
			FetchStatus:   claims.PODFetchSuccess,
			PODURL:        &result.PODURL,
			RecipientName: &result.PODData.RecipientName,
			SignatureURL:  &result.PODData.SignatureURL,
		}
		if err := w.store.UpdateClaimPODFields(ctx, claim.ID, update); err != nil {
			logger.Error().Err(err).Msg("Failed to record POD success")
			stats.Failed++
			workerClaimsTotal.WithLabelValues("failed").Inc()
			return
		}

		stats.Success++
		workerClaimsTotal.WithLabelValues("success").Inc()
		logger.Info().Str("source", string(result.Source)).Msg("POD fetched successfully")

		w.notifySuccess(ctx, claim, result.PODURL, logger)
		return
	}

	errText := "Unknown error"
	if result != nil && result.Err != "" {
		errText = result.Err
	}

	// Mark failed; the retry scheduler owns the claim from here.
	w.markFailed(ctx, claim, errText, logger)
	stats.Failed++
	workerClaimsTotal.WithLabelValues("failed").Inc()
	logger.Warn().Str("error", errText).Msg("POD fetch failed")
}

func (w *FetchWorker) markFailed(ctx context.Context, claim claims.Claim, errText string, logger zerolog.Logger) {
	update := claims.PODUpdate{
		FetchStatus: claims.PODFetchFailed,
		FetchError:  &errText,
	}
	if err := w.store.UpdateClaimPODFields(ctx, claim.ID, update); err != nil {
		logger.Error().Err(err).Msg("Failed to record POD failure")
	}
}

func (w *FetchWorker) notifySuccess(ctx context.Context, claim claims.Claim, podURL string, logger zerolog.Logger) {
	email, err := w.store.GetClientEmail(ctx, claim.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve client email for success notification")
		return
	}

	err = w.notifier.QueueNotification(ctx, email, notify.EventPODRetrieved, map[string]string{
		"claim_ref": claim.Reference,
		"carrier":   claim.Carrier,
		"pod_url":   podURL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to queue success notification")
	}
}
