// Package fetcher orchestrates POD retrieval: cache lookup, carrier pacing,
// connector call, bounded retry, and write-through caching.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/recoura/pod-engine/pkg/cache"
	"github.com/recoura/pod-engine/pkg/carrier"
)

// Prometheus metrics for POD fetch operations.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_fetch_total",
		Help: "Total POD fetches by carrier, source and outcome",
	}, []string{"carrier", "source", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pod_fetch_duration_seconds",
		Help:    "POD fetch duration in seconds by carrier",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"carrier"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_fetch_retries_total",
		Help: "Total in-call retry attempts by carrier",
	}, []string{"carrier"})
)

// Source records where a POD result came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceAPI   Source = "api"
)

// Result is the outcome of a FetchPOD call. Failures are values, not errors:
// the batch jobs record them on the claim and move on.
type Result struct {
	Success bool
	PODURL  string
	PODData carrier.PODData
	Err     string
	Source  Source
}

// ErrMaxRetries is the terminal error text after all attempts fail. The
// classifier treats it as transient, so the scheduler keeps the claim alive.
const ErrMaxRetries = "Max retries exceeded"

// Config holds fetcher construction parameters.
type Config struct {
	// Retry bounds the in-call retry loop.
	Retry RetryPolicy

	// PaceRPS spaces successive calls to the same carrier. Zero disables
	// pacing. This is politeness spacing, independent of the quota limiter.
	PaceRPS float64

	// PaceBurst is the pacing burst size (default 1).
	PaceBurst int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Retry:     DefaultRetryPolicy(),
		PaceRPS:   1,
		PaceBurst: 1,
	}
}

// Fetcher retrieves PODs through registered carrier connectors, consulting
// the cache first and retrying transient connector failures in-call.
type Fetcher struct {
	registry *carrier.Registry
	cache    *cache.Manager
	config   Config
	logger   zerolog.Logger
	pacers   map[string]*rate.Limiter
}

// New creates a fetcher. The cache manager may be nil to disable caching.
func New(registry *carrier.Registry, cacheManager *cache.Manager, cfg Config, logger zerolog.Logger) (*Fetcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("carrier registry is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry policy needs at least one attempt (got %d)", cfg.Retry.MaxAttempts)
	}

	// One pacer per registered carrier, built up front so pacing needs no
	// locking at fetch time.
	pacers := make(map[string]*rate.Limiter)
	if cfg.PaceRPS > 0 {
		burst := cfg.PaceBurst
		if burst < 1 {
			burst = 1
		}
		for _, name := range registry.Carriers() {
			pacers[name] = rate.NewLimiter(rate.Limit(cfg.PaceRPS), burst)
		}
	}

	return &Fetcher{
		registry: registry,
		cache:    cacheManager,
		config:   cfg,
		logger:   logger,
		pacers:   pacers,
	}, nil
}

// Option tweaks a single FetchPOD call.
type Option func(*fetchOptions)

type fetchOptions struct {
	skipCache bool
}

// WithoutCache skips the cache lookup. Explicit retries use this so a stale
// failure never masks a fresh attempt; successful results are still written
// through.
func WithoutCache() Option {
	return func(o *fetchOptions) {
		o.skipCache = true
	}
}

// FetchPOD fetches proof of delivery for a tracking number.
//
// Flow: cache lookup (unless skipped), connector resolution, then up to
// MaxAttempts connector calls with exponential backoff between attempts.
// An unsupported carrier fails immediately without consuming an attempt.
func (f *Fetcher) FetchPOD(ctx context.Context, trackingNumber, carrierName string, opts ...Option) *Result {
	var options fetchOptions
	for _, opt := range opts {
		opt(&options)
	}

	startTime := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(carrierName).Observe(time.Since(startTime).Seconds())
	}()

	logger := f.logger.With().
		Str("tracking_number", trackingNumber).
		Str("carrier", carrierName).
		Logger()

	logger.Info().Msg("Fetching POD")

	// Step 1: cache lookup
	if f.cache != nil && !options.skipCache {
		key := cache.Key{Carrier: carrierName, TrackingNumber: trackingNumber}
		if entry, err := f.cache.Get(ctx, key); err == nil {
			logger.Info().Msg("POD found in cache")
			fetchTotal.WithLabelValues(carrierName, string(SourceCache), "success").Inc()
			return &Result{
				Success: true,
				PODURL:  entry.PODURL,
				PODData: entry.PODData,
				Source:  SourceCache,
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			// Storage errors degrade to a cache miss
			logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	// Step 2: connector resolution. Unsupported carriers fail immediately.
	connector, err := f.registry.Resolve(carrierName)
	if err != nil {
		if errors.Is(err, carrier.ErrUnsupportedCarrier) {
			logger.Warn().Msg("Carrier not supported")
			fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "unsupported").Inc()
			return &Result{Err: fmt.Sprintf("Carrier not supported: %s", carrierName)}
		}
		logger.Error().Err(err).Msg("Connector resolution failed")
		fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "error").Inc()
		return &Result{Err: err.Error()}
	}

	// Step 3: bounded retry loop
	var lastErr string
	for attempt := 0; attempt < f.config.Retry.MaxAttempts; attempt++ {
		if pacer, ok := f.pacers[connector.Name()]; ok {
			if err := pacer.Wait(ctx); err != nil {
				fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "cancelled").Inc()
				return &Result{Err: err.Error()}
			}
		}

		result, err := connector.GetPOD(ctx, trackingNumber)
		if err != nil {
			// Transport-level failure
			lastErr = err.Error()
			logger.Error().Err(err).Int("attempt", attempt+1).Msg("POD fetch error")

			if attempt == f.config.Retry.MaxAttempts-1 {
				fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "error").Inc()
				return &Result{Err: lastErr}
			}
		} else if result.Success {
			f.writeThrough(ctx, trackingNumber, carrierName, result, logger)
			logger.Info().Int("attempt", attempt+1).Msg("POD fetched successfully")
			fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "success").Inc()
			return &Result{
				Success: true,
				PODURL:  result.PODURL,
				PODData: result.PODData,
				Source:  SourceAPI,
			}
		} else {
			// Carrier-level failure
			lastErr = result.Err
			logger.Warn().
				Int("attempt", attempt+1).
				Int("max_attempts", f.config.Retry.MaxAttempts).
				Str("error", result.Err).
				Msg("POD fetch attempt failed")
		}

		if attempt < f.config.Retry.MaxAttempts-1 {
			fetchRetriesTotal.WithLabelValues(carrierName).Inc()
			if err := f.config.Retry.Wait(ctx, attempt); err != nil {
				fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "cancelled").Inc()
				return &Result{Err: err.Error()}
			}
		}
	}

	logger.Warn().Str("last_error", lastErr).Msg("POD fetch retries exhausted")
	fetchTotal.WithLabelValues(carrierName, string(SourceAPI), "exhausted").Inc()
	return &Result{Err: ErrMaxRetries}
}

// writeThrough caches a successful API result. Cache failures are logged,
// never surfaced: the fetch already succeeded.
func (f *Fetcher) writeThrough(ctx context.Context, trackingNumber, carrierName string, result *carrier.PODResult, logger zerolog.Logger) {
	if f.cache == nil {
		return
	}

	key := cache.Key{Carrier: carrierName, TrackingNumber: trackingNumber}
	entry := &cache.Entry{
		PODURL:   result.PODURL,
		PODData:  result.PODData,
		CachedAt: time.Now(),
	}

	if err := f.cache.Set(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache POD")
	}
}
