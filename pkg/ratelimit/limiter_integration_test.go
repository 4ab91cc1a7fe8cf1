//go:build integration

package ratelimit

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestLimiter_Integration_SnapshotRoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.Nop()
	store := NewRedisStore(redisClient)

	quotas := map[string]Quota{
		"colissimo": {Max: 1000, Window: WindowDay},
		"ups":       {Max: 200, Window: WindowHour},
	}

	limiter := New(quotas, store, logger)
	for i := 0; i < 10; i++ {
		limiter.RecordRequest("colissimo")
	}
	limiter.RecordRequest("ups")

	// Simulated restart: a new limiter over the same Redis store.
	restored := New(quotas, store, logger)

	stats, ok := restored.Stats("colissimo")
	if !ok {
		t.Fatal("Stats() not found for colissimo")
	}
	if stats.Count != 10 {
		t.Errorf("restored colissimo count = %d, want 10", stats.Count)
	}

	stats, _ = restored.Stats("ups")
	if stats.Count != 1 {
		t.Errorf("restored ups count = %d, want 1", stats.Count)
	}
}

func TestLimiter_Integration_SharedBudget(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.Nop()
	store := NewRedisStore(redisClient)

	quotas := map[string]Quota{
		"chronopost": {Max: 5, Window: WindowDay},
	}

	// Worker A consumes the whole budget.
	workerA := New(quotas, store, logger)
	for i := 0; i < 5; i++ {
		if ok, _ := workerA.TryAcquire("chronopost"); !ok {
			t.Fatalf("TryAcquire() #%d = false, want true", i+1)
		}
	}

	// Worker B starting later sees the exhausted budget.
	workerB := New(quotas, store, logger)
	if ok, _ := workerB.TryAcquire("chronopost"); ok {
		t.Error("TryAcquire() = true on second worker, want false after budget exhausted")
	}
}
