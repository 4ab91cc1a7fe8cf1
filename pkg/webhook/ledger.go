// Package webhook ingests carrier tracking events idempotently and drives
// the claim status state machine, raising bypass alerts when carrier
// evidence contradicts the claim.
package webhook

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger records applied (tracking_number, event_tag) pairs. An entry's
// existence means the event was already applied and must never be reapplied.
type Ledger interface {
	// Record inserts the pair if absent, atomically. Returns first=true when
	// this call created the entry, first=false when the event was already
	// applied.
	Record(ctx context.Context, trackingNumber, eventTag string) (first bool, err error)

	// Forget removes the pair. Used to roll back when applying the event
	// failed after the ledger insert, so a redelivery can retry.
	Forget(ctx context.Context, trackingNumber, eventTag string) error
}

func ledgerKey(trackingNumber, eventTag string) string {
	return strings.Join([]string{"pod", "webhook", "ledger", trackingNumber, eventTag}, ":")
}

// RedisLedger implements Ledger with SET NX, so the duplicate check and the
// append are one atomic operation even under concurrent duplicate delivery.
type RedisLedger struct {
	redis *redis.Client
}

// NewRedisLedger creates a Redis-backed idempotency ledger.
func NewRedisLedger(redisClient *redis.Client) *RedisLedger {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisLedger{redis: redisClient}
}

func (l *RedisLedger) Record(ctx context.Context, trackingNumber, eventTag string) (bool, error) {
	first, err := l.redis.SetNX(ctx, ledgerKey(trackingNumber, eventTag), time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("ledger setnx: %w", err)
	}
	return first, nil
}

func (l *RedisLedger) Forget(ctx context.Context, trackingNumber, eventTag string) error {
	if err := l.redis.Del(ctx, ledgerKey(trackingNumber, eventTag)).Err(); err != nil {
		return fmt.Errorf("ledger del: %w", err)
	}
	return nil
}

// MemoryLedger is an in-process Ledger for tests and single-node setups.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryLedger creates an in-memory idempotency ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]time.Time)}
}

func (l *MemoryLedger) Record(_ context.Context, trackingNumber, eventTag string) (bool, error) {
	key := ledgerKey(trackingNumber, eventTag)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[key]; exists {
		return false, nil
	}
	l.entries[key] = time.Now()
	return true, nil
}

func (l *MemoryLedger) Forget(_ context.Context, trackingNumber, eventTag string) error {
	key := ledgerKey(trackingNumber, eventTag)

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
	return nil
}

// Len returns the number of ledger entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
