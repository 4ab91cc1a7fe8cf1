package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisQueue_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisQueue should panic with nil redis client")
		}
	}()
	NewRedisQueue(nil)
}

func TestRedisQueue_QueueNotification(t *testing.T) {
	client := setupTestRedis(t)
	queue := NewRedisQueue(client)
	queuedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	queue.now = func() time.Time { return queuedAt }
	ctx := context.Background()

	err := queue.QueueNotification(ctx, "client@example.com", EventPODRetrieved, map[string]string{
		"tracking_number": "FR123456789AB",
		"pod_url":         "https://pods.example.com/FR123456789AB.pdf",
	})
	if err != nil {
		t.Fatalf("QueueNotification() error = %v", err)
	}

	raw, err := client.LPop(ctx, RedisQueueKey).Bytes()
	if err != nil {
		t.Fatalf("lpop queue: %v", err)
	}

	var got queuedNotification
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal queued notification: %v", err)
	}
	if got.ClientEmail != "client@example.com" {
		t.Errorf("ClientEmail = %q", got.ClientEmail)
	}
	if got.Event != EventPODRetrieved {
		t.Errorf("Event = %q, want %q", got.Event, EventPODRetrieved)
	}
	if got.Data["tracking_number"] != "FR123456789AB" {
		t.Errorf("Data[tracking_number] = %q", got.Data["tracking_number"])
	}
	if !got.QueuedAt.Equal(queuedAt) {
		t.Errorf("QueuedAt = %v, want %v", got.QueuedAt, queuedAt)
	}
}

func TestRedisQueue_PreservesOrder(t *testing.T) {
	client := setupTestRedis(t)
	queue := NewRedisQueue(client)
	ctx := context.Background()

	for _, event := range []EventType{EventPODRetrieved, EventPODFailed} {
		if err := queue.QueueNotification(ctx, "client@example.com", event, nil); err != nil {
			t.Fatalf("QueueNotification(%s) error = %v", event, err)
		}
	}

	entries, err := client.LRange(ctx, RedisQueueKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("lrange queue: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("queue length = %d, want 2", len(entries))
	}

	var first queuedNotification
	if err := json.Unmarshal([]byte(entries[0]), &first); err != nil {
		t.Fatalf("unmarshal first entry: %v", err)
	}
	if first.Event != EventPODRetrieved {
		t.Errorf("first event = %q, want %q", first.Event, EventPODRetrieved)
	}
}
