package lease

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLeaseExcludesSecondHolder(t *testing.T) {
	lease := NewMemoryLease()
	ctx := context.Background()

	release, ok, err := lease.Acquire(ctx, "tr-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := lease.Acquire(ctx, "tr-1", time.Minute); ok {
		t.Fatalf("second acquire must fail while held")
	}
	if _, ok, _ := lease.Acquire(ctx, "tr-2", time.Minute); !ok {
		t.Fatalf("other returns must not be blocked")
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := lease.Acquire(ctx, "tr-1", time.Minute); !ok {
		t.Fatalf("acquire after release must succeed")
	}
}

func TestMemoryLeaseExpiredHoldIsTakenOver(t *testing.T) {
	lease := NewMemoryLease()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lease.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, ok, _ := lease.Acquire(ctx, "tr-1", time.Minute)
	if !ok {
		t.Fatalf("first acquire failed")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := lease.Acquire(ctx, "tr-1", time.Minute); !ok {
		t.Fatalf("expired hold must be taken over")
	}

	// The stale holder must not drop the new hold.
	_ = staleRelease(ctx)
	if _, ok, _ := lease.Acquire(ctx, "tr-1", time.Minute); ok {
		t.Fatalf("stale release removed the current hold")
	}
}

func TestRedisLeaseReportsConnectionError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	_, ok, err := NewRedisLease(client, "").Acquire(context.Background(), "tr-1", time.Minute)
	if err == nil || ok {
		t.Fatalf("expected connection error, got ok=%v err=%v", ok, err)
	}
}
