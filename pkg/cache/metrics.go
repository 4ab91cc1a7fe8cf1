package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_cache_hits_total",
			Help: "Total number of POD cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pod_cache_misses_total",
			Help: "Total number of POD cache misses",
		},
	)

	// CacheExpirations tracks entries lazily evicted on access after expiry
	CacheExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pod_cache_expirations_total",
			Help: "Total number of expired POD cache entries evicted on access",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_cache_errors_total",
			Help: "Total number of POD cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
