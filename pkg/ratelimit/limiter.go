package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pod_rate_limit_usage",
		Help: "Requests consumed in the current quota window by carrier",
	}, []string{"carrier", "window"})

	quotaBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_rate_limit_blocks_total",
		Help: "Total requests blocked because a carrier quota was exhausted",
	}, []string{"carrier"})

	quotaResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_rate_limit_resets_total",
		Help: "Total lazy window resets by carrier",
	}, []string{"carrier"})

	snapshotErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pod_rate_limit_snapshot_errors_total",
		Help: "Total snapshot persistence errors by operation",
	}, []string{"operation"})
)

// RateLimitedError is the soft failure returned when a carrier quota is
// exhausted. It is schedulable, not fatal: the next cron run retries after
// RetryAfter.
type RateLimitedError struct {
	Carrier    string
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, resets at %s",
		e.Carrier, e.RetryAfter.Format(time.RFC3339))
}

// Operation is a carrier call gated by the limiter.
type Operation func(ctx context.Context) error

// Limiter enforces per-carrier request ceilings within fixed windows.
// Counters live in memory behind a mutex and are snapshotted to the store on
// every mutation; the snapshot is reloaded at construction so restarts keep
// the consumed budget.
type Limiter struct {
	quotas map[string]Quota
	store  SnapshotStore
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	daily  map[string]*Counter
	hourly map[string]*Counter
}

// New builds a limiter for the given carrier quota table. A nil store
// disables persistence. Snapshot load errors are logged and start the
// limiter with empty counters.
func New(quotas map[string]Quota, store SnapshotStore, logger zerolog.Logger) *Limiter {
	if quotas == nil {
		quotas = DefaultQuotas()
	}

	normalized := make(map[string]Quota, len(quotas))
	for name, quota := range quotas {
		normalized[strings.ToLower(strings.TrimSpace(name))] = quota
	}

	l := &Limiter{
		quotas: normalized,
		store:  store,
		logger: logger,
		now:    time.Now,
		daily:  make(map[string]*Counter),
		hourly: make(map[string]*Counter),
	}

	l.restore()

	return l
}

// restore loads the persisted snapshot into memory.
func (l *Limiter) restore() {
	if l.store == nil {
		return
	}

	snapshot, err := l.store.Load(context.Background())
	if err != nil {
		snapshotErrorsTotal.WithLabelValues("load").Inc()
		l.logger.Error().Err(err).Msg("Failed to load rate limit snapshot, starting with empty counters")
		return
	}
	if snapshot == nil {
		return
	}

	for carrier, counter := range snapshot.DailyCounts {
		c := counter
		l.daily[carrier] = &c
	}
	for carrier, counter := range snapshot.HourlyCounts {
		c := counter
		l.hourly[carrier] = &c
	}

	l.logger.Info().
		Int("daily_carriers", len(snapshot.DailyCounts)).
		Int("hourly_carriers", len(snapshot.HourlyCounts)).
		Time("last_updated", snapshot.LastUpdated).
		Msg("Rate limit counters restored from snapshot")
}

// counterLocked returns the live counter for a carrier, lazily resetting it
// when its window has expired. Callers must hold l.mu.
func (l *Limiter) counterLocked(carrier string, quota Quota) *Counter {
	counters := l.daily
	if quota.Window == WindowHour {
		counters = l.hourly
	}

	counter, ok := counters[carrier]
	if !ok {
		counter = &Counter{}
		counters[carrier] = counter
	}

	now := l.now()
	if counter.ResetAt.IsZero() || now.After(counter.ResetAt) {
		if !counter.ResetAt.IsZero() {
			quotaResetsTotal.WithLabelValues(carrier).Inc()
			l.logger.Info().
				Str("carrier", carrier).
				Str("window", string(quota.Window)).
				Msg("Rate limit counter reset")
		}
		counter.Count = 0
		counter.ResetAt = now.Add(quota.Window.Duration())
	}

	return counter
}

// CanExecute reports whether another request may be issued for the carrier
// right now. Carriers without a configured quota are never limited.
//
// This is an advisory read: batch jobs use it to skip claims cheaply. The
// authoritative gate is TryAcquire, which checks and increments atomically.
func (l *Limiter) CanExecute(carrier string) bool {
	carrier = strings.ToLower(strings.TrimSpace(carrier))

	quota, ok := l.quotas[carrier]
	if !ok {
		l.logger.Debug().Str("carrier", carrier).Msg("No quota configured, allowing request")
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.counterLocked(carrier, quota)
	return counter.Count < quota.Max
}

// RecordRequest counts one issued request against the carrier's quota and
// persists the snapshot. Persistence errors are logged, never returned.
func (l *Limiter) RecordRequest(carrier string) {
	carrier = strings.ToLower(strings.TrimSpace(carrier))

	quota, ok := l.quotas[carrier]
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.counterLocked(carrier, quota)
	counter.Count++

	quotaUsage.WithLabelValues(carrier, string(quota.Window)).Set(float64(counter.Count))
	l.logger.Debug().
		Str("carrier", carrier).
		Int("count", counter.Count).
		Int("limit", quota.Max).
		Msg("Carrier API usage recorded")

	l.persistLocked()
}

// TryAcquire atomically checks the quota and consumes one slot. When blocked
// it returns ok=false and the window reset time. Unknown carriers always
// acquire without consuming anything.
func (l *Limiter) TryAcquire(carrier string) (ok bool, retryAfter time.Time) {
	carrier = strings.ToLower(strings.TrimSpace(carrier))

	quota, configured := l.quotas[carrier]
	if !configured {
		return true, time.Time{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.counterLocked(carrier, quota)
	if counter.Count >= quota.Max {
		quotaBlocksTotal.WithLabelValues(carrier).Inc()
		l.logger.Warn().
			Str("carrier", carrier).
			Int("count", counter.Count).
			Int("limit", quota.Max).
			Time("reset_at", counter.ResetAt).
			Msg("Rate limit reached for carrier")
		return false, counter.ResetAt
	}

	counter.Count++
	quotaUsage.WithLabelValues(carrier, string(quota.Window)).Set(float64(counter.Count))
	l.persistLocked()

	return true, time.Time{}
}

// ExecuteWithLimit gates op behind the carrier quota. When the quota is
// exhausted it returns a *RateLimitedError carrying the retry time; callers
// treat that as a schedulable condition, not a hard failure. The quota slot
// is consumed before op runs, so concurrent callers can never both slip
// through a full window.
func (l *Limiter) ExecuteWithLimit(ctx context.Context, carrier string, op Operation) error {
	ok, retryAfter := l.TryAcquire(carrier)
	if !ok {
		return &RateLimitedError{Carrier: carrier, RetryAfter: retryAfter}
	}

	return op(ctx)
}

// Stats returns the usage report for one carrier. Unknown carriers return
// ok=false.
func (l *Limiter) Stats(carrier string) (Stats, bool) {
	carrier = strings.ToLower(strings.TrimSpace(carrier))

	quota, configured := l.quotas[carrier]
	if !configured {
		return Stats{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.counterLocked(carrier, quota)

	percent := 0.0
	if quota.Max > 0 {
		percent = float64(counter.Count) / float64(quota.Max) * 100
	}

	return Stats{
		Carrier:      carrier,
		Count:        counter.Count,
		Limit:        quota.Max,
		Window:       quota.Window,
		ResetAt:      counter.ResetAt,
		UsagePercent: percent,
	}, true
}

// AllStats returns usage reports for every configured carrier, sorted by name.
func (l *Limiter) AllStats() []Stats {
	names := make([]string, 0, len(l.quotas))
	for name := range l.quotas {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]Stats, 0, len(names))
	for _, name := range names {
		if s, ok := l.Stats(name); ok {
			stats = append(stats, s)
		}
	}
	return stats
}

// persistLocked snapshots all counters to the store. Callers must hold l.mu.
// Persistence failure degrades to in-memory-only limiting.
func (l *Limiter) persistLocked() {
	if l.store == nil {
		return
	}

	snapshot := &Snapshot{
		LastUpdated:  l.now(),
		DailyCounts:  make(map[string]Counter, len(l.daily)),
		HourlyCounts: make(map[string]Counter, len(l.hourly)),
	}
	for carrier, counter := range l.daily {
		snapshot.DailyCounts[carrier] = *counter
	}
	for carrier, counter := range l.hourly {
		snapshot.HourlyCounts[carrier] = *counter
	}

	if err := l.store.Save(context.Background(), snapshot); err != nil {
		snapshotErrorsTotal.WithLabelValues("save").Inc()
		l.logger.Error().Err(err).Msg("Failed to persist rate limit snapshot")
	}
}
