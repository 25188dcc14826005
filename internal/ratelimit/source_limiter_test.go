package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSourceLimiterCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewSourceLimiter(client, 2, 1, time.Minute)

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "github")
		if err != nil || !allowed {
			t.Fatalf("push %d: allowed=%v err=%v", i+1, allowed, err)
		}
	}
	allowed, _, err := limiter.Allow(ctx, "github")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("third push should be rejected at capacity 2")
	}
}

func TestSourcesAreIsolated(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewSourceLimiter(client, 1, 1, time.Minute)

	if allowed, _, _ := limiter.Allow(ctx, "github"); !allowed {
		t.Fatal("first github push should pass")
	}
	if allowed, _, _ := limiter.Allow(ctx, "github"); allowed {
		t.Fatal("second github push should be limited")
	}
	if allowed, _, _ := limiter.Allow(ctx, "board"); !allowed {
		t.Fatal("board must have its own bucket")
	}
}
