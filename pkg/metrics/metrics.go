// Package metrics provides the central Prometheus registry reference for the
// POD engine. All metrics are defined in their respective packages
// (ratelimit, cache, fetcher, scheduler, webhook) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the POD engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pod_rate_limit_usage{carrier, window} (Gauge): Requests consumed in the current window
//   - pod_rate_limit_blocks_total{carrier} (Counter): Requests blocked on exhausted quota
//   - pod_rate_limit_resets_total{carrier} (Counter): Lazy window resets
//   - pod_rate_limit_snapshot_errors_total{operation} (Counter): Snapshot persistence errors
//
// Cache Metrics (pkg/cache):
//   - pod_cache_hits_total{layer="memory"|"redis"} (Counter): Cache hits by tier
//   - pod_cache_misses_total (Counter): Cache misses
//   - pod_cache_expirations_total (Counter): Expired entries evicted on access
//   - pod_cache_errors_total{operation} (Counter): Cache operation errors
//
// Fetch Metrics (pkg/fetcher):
//   - pod_fetch_total{carrier, source, outcome} (Counter): Fetches by carrier, source and outcome
//   - pod_fetch_retries_total{carrier} (Counter): In-call retry attempts
//
// Batch Metrics (pkg/scheduler):
//   - pod_retry_runs_total{outcome} (Counter): Retry scheduler runs
//   - pod_retry_claims_total{result} (Counter): Claims handled by the retry scheduler
//   - pod_worker_claims_total{result} (Counter): Claims handled by the fetch worker
//
// Webhook Metrics (pkg/webhook):
//   - pod_webhook_events_total{tag, result} (Counter): Tracking events by tag and result
//   - pod_bypass_alerts_total (Counter): Bypass alerts raised
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pod_cache_hits_total[5m])) /
//   (sum(rate(pod_cache_hits_total[5m])) + sum(rate(pod_cache_misses_total[5m])))
//
//   # Carriers blocked on exhausted quota
//   rate(pod_rate_limit_blocks_total[5m]) > 0
//
//   # Retry success rate
//   rate(pod_retry_claims_total{result="success"}[1h]) /
//   rate(pod_retry_claims_total{result=~"success|failed"}[1h])
//
//   # Duplicate webhook pressure
//   rate(pod_webhook_events_total{result="duplicate"}[5m])
