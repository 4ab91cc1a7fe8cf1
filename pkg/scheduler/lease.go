package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease provides run-level mutual exclusion so two overlapping cron
// invocations never double-process the same claims.
type Lease interface {
	// Acquire attempts to take the lease. When held elsewhere it returns
	// ok=false. The returned release function must be called when the run
	// finishes.
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the lease key only when it still holds our token,
// so a slow run can never release a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements Lease with a SET NX token and TTL. The TTL caps how
// long a crashed run can block its successors.
type RedisLease struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisLease creates a Redis-backed run lease.
func NewRedisLease(redisClient *redis.Client, key string, ttl time.Duration) *RedisLease {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLease{
		redis: redisClient,
		key:   key,
		ttl:   ttl,
	}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), bool, error) {
	token := newToken()

	ok, err := l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		_ = releaseScript.Run(context.Background(), l.redis, []string{l.key}, token).Err()
	}

	return release, true, nil
}

func newToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
