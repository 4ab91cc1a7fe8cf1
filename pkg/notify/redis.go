package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueKey is the Redis list the notification worker drains.
const RedisQueueKey = "pod:notify:queue"

// queuedNotification is the wire format pushed onto the queue.
type queuedNotification struct {
	ClientEmail string            `json:"client_email"`
	Event       EventType         `json:"event"`
	Data        map[string]string `json:"data,omitempty"`
	QueuedAt    time.Time         `json:"queued_at"`
}

// RedisQueue queues notifications onto a Redis list. A delivery worker
// outside this module drains the list and applies client preferences and
// send rate limits.
type RedisQueue struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisQueue creates a Redis-backed notification queue.
// Panics if client is nil.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisQueue{client: client, now: time.Now}
}

// QueueNotification appends one notification to the delivery queue.
func (q *RedisQueue) QueueNotification(ctx context.Context, clientEmail string, event EventType, data map[string]string) error {
	payload, err := json.Marshal(queuedNotification{
		ClientEmail: clientEmail,
		Event:       event,
		Data:        data,
		QueuedAt:    q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := q.client.RPush(ctx, RedisQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}
