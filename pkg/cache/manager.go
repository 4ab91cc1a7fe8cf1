package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// MemoryTTL is the lifetime of the in-process tier. It only short-circuits
// repeated lookups within one batch run; Redis remains the durable tier.
const MemoryTTL = 5 * time.Minute

// Manager is the two-tier POD cache: an in-process go-cache front for hot
// lookups within a batch run, backed by Redis with the full 30-day TTL.
// Expired entries are deleted lazily on the next access; there is no
// background sweep.
type Manager struct {
	redis  *redis.Client
	memory *gocache.Cache
	ttl    time.Duration
}

// NewManager creates a cache manager. A ttl of 0 uses DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis:  redisClient,
		memory: gocache.New(MemoryTTL, 2*MemoryTTL),
		ttl:    ttl,
	}
}

// Get retrieves a cached POD by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry has expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	// Memory tier first
	if cached, ok := m.memory.Get(cacheKey); ok {
		entry := cached.(*Entry)
		if !entry.IsExpired(m.ttl) {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
		m.memory.Delete(cacheKey)
	}

	// Redis tier
	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Lazy eviction on access after expiry
	if entry.IsExpired(m.ttl) {
		_ = m.Delete(ctx, key)
		CacheExpirations.Inc()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	m.memory.Set(cacheKey, &entry, gocache.DefaultExpiration)
	CacheHits.WithLabelValues("redis").Inc()

	return &entry, nil
}

// Set stores a POD entry in both tiers. The Redis TTL is the entry's
// remaining lifetime, so a re-cached old entry never outlives its window.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}

	remaining := entry.TTL(m.ttl)
	if remaining <= 0 {
		// Already expired, don't cache
		return nil
	}

	cacheKey := key.String()

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, remaining).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	m.memory.Set(cacheKey, entry, gocache.DefaultExpiration)

	return nil
}

// Delete removes a cached POD from both tiers.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()

	m.memory.Delete(cacheKey)

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
