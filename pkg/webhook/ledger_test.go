package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client for testing.
// For unit tests this connects to localhost; integration tests use
// testcontainers-go with a real Redis instance.
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

func TestMemoryLedger_RecordForget(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	first, err := ledger.Record(ctx, "FR123456789AB", TagDelivered)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !first {
		t.Error("Record() first = false on initial insert, want true")
	}

	first, err = ledger.Record(ctx, "FR123456789AB", TagDelivered)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first {
		t.Error("Record() first = true on duplicate, want false")
	}

	// Distinct tag is a distinct entry.
	first, _ = ledger.Record(ctx, "FR123456789AB", TagLost)
	if !first {
		t.Error("Record() first = false for distinct tag, want true")
	}
	if ledger.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ledger.Len())
	}

	if err := ledger.Forget(ctx, "FR123456789AB", TagDelivered); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	first, _ = ledger.Record(ctx, "FR123456789AB", TagDelivered)
	if !first {
		t.Error("Record() first = false after Forget, want true")
	}
}

func TestMemoryLedger_ConcurrentDuplicates(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	firsts := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := ledger.Record(ctx, "FR123456789AB", TagDelivered)
			if err != nil {
				t.Errorf("Record() error = %v", err)
				return
			}
			firsts <- first
		}()
	}
	wg.Wait()
	close(firsts)

	winners := 0
	for first := range firsts {
		if first {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("concurrent Record() winners = %d, want exactly 1", winners)
	}
}

func TestRedisLedger_RecordForget(t *testing.T) {
	client := setupTestRedis(t)
	ledger := NewRedisLedger(client)
	ctx := context.Background()

	first, err := ledger.Record(ctx, "FR123456789AB", TagDelivered)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !first {
		t.Error("Record() first = false on initial insert, want true")
	}

	first, err = ledger.Record(ctx, "FR123456789AB", TagDelivered)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first {
		t.Error("Record() first = true on duplicate, want false")
	}

	if err := ledger.Forget(ctx, "FR123456789AB", TagDelivered); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	first, _ = ledger.Record(ctx, "FR123456789AB", TagDelivered)
	if !first {
		t.Error("Record() first = false after Forget, want true")
	}
}

func TestNewRedisLedger_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisLedger should panic with nil redis client")
		}
	}()
	NewRedisLedger(nil)
}
