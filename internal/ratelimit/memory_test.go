package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	key := UserKey(42)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, key, 3, now)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Remaining != 3-(i+1) {
			t.Fatalf("request %d: remaining %d, want %d", i+1, result.Remaining, 3-(i+1))
		}
	}

	result, err := limiter.Allow(ctx, key, 3, now)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if result.Allowed {
		t.Fatalf("fourth request in the same second must be rejected")
	}

	// The next second opens a fresh window.
	result, err = limiter.Allow(ctx, key, 3, now.Add(time.Second))
	if err != nil || !result.Allowed {
		t.Fatalf("expected allowed in new window, result=%+v err=%v", result, err)
	}
}

func TestMemoryLimiterSeparateKeys(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Now()

	if result, _ := limiter.Allow(ctx, UserKey(1), 1, now); !result.Allowed {
		t.Fatalf("first key should be allowed")
	}
	if result, _ := limiter.Allow(ctx, UserKey(1), 1, now); result.Allowed {
		t.Fatalf("first key should be exhausted")
	}
	if result, _ := limiter.Allow(ctx, UserKey(2), 1, now); !result.Allowed {
		t.Fatalf("second key must have its own window")
	}
}

func TestMemoryLimiterZeroLimitAllows(t *testing.T) {
	limiter := NewMemoryLimiter()
	result, err := limiter.Allow(context.Background(), UserKey(1), 0, time.Now())
	if err != nil || !result.Allowed {
		t.Fatalf("zero limit must disable limiting, result=%+v err=%v", result, err)
	}
}

func TestManagerMemoryOnly(t *testing.T) {
	m := NewManager(managerTestConfig(false))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }

	ctx := context.Background()
	key := UserKey(7)
	for i := 0; i < 2; i++ {
		result, err := m.Allow(ctx, key, 2)
		if err != nil || !result.Allowed {
			t.Fatalf("request %d: result=%+v err=%v", i+1, result, err)
		}
	}
	result, err := m.Allow(ctx, key, 2)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected limit enforced via memory backend")
	}
}

func TestManagerZeroLimitBypasses(t *testing.T) {
	m := NewManager(managerTestConfig(false))
	result, err := m.Allow(context.Background(), UserKey(7), 0)
	if err != nil || !result.Allowed {
		t.Fatalf("zero limit must bypass, result=%+v err=%v", result, err)
	}
}
