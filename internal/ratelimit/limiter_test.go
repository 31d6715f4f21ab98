package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}
	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})
	return rdb
}

func TestAllow_BlocksAfterLimit(t *testing.T) {
	rdb := setupTestRedis(t)
	l := NewLimiter(rdb)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice", rule)
		if err != nil || !ok {
			t.Fatalf("request %d: expected allowed, got %v (%v)", i+1, ok, err)
		}
	}
	ok, err := l.Allow(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("fourth request should be rate limited")
	}

	// Other identifiers have their own window.
	if ok, _ := l.Allow(ctx, "bob", rule); !ok {
		t.Error("bob should not be limited by alice's usage")
	}

	wait, err := l.RetryAfter(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("RetryAfter: %v", err)
	}
	if wait <= 0 || wait > time.Minute {
		t.Errorf("expected retry-after within the window, got %v", wait)
	}
}

func TestRetryAfter_NoWindow(t *testing.T) {
	rdb := setupTestRedis(t)
	wait, err := NewLimiter(rdb).RetryAfter(context.Background(), "nobody", RuleSubmit)
	if err != nil || wait != 0 {
		t.Errorf("expected zero wait, got %v (%v)", wait, err)
	}
}
