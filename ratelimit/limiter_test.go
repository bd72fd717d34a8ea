package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestGeneralTierRejectsRequestOverLimit(t *testing.T) {
	limiter, mr, done := newLimiterTest(t, Config{})
	defer done()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		decision, err := limiter.Allow(ctx, "client-1", TierGeneral)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d: expected allow", i+1)
		}
	}

	decision, err := limiter.Allow(ctx, "client-1", TierGeneral)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on request 101, got %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected rejection on request 101")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry-after %v", decision.RetryAfter)
	}
	if decision.Window != 15*time.Minute || decision.Limit != 100 {
		t.Fatalf("unexpected window metadata: %+v", decision)
	}

	// A different identity is unaffected.
	if _, err := limiter.Allow(ctx, "client-2", TierGeneral); err != nil {
		t.Fatalf("independent key must not be limited: %v", err)
	}

	// After the window elapses the first request of the new window succeeds.
	mr.FastForward(15 * time.Minute)
	decision, err = limiter.Allow(ctx, "client-1", TierGeneral)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected fresh window to allow, got %+v err=%v", decision, err)
	}
	if decision.Remaining != 99 {
		t.Fatalf("expected 99 remaining in fresh window, got %d", decision.Remaining)
	}
}

func TestSensitiveTierRejectsEleventhRequest(t *testing.T) {
	limiter, _, done := newLimiterTest(t, Config{})
	defer done()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := limiter.Allow(ctx, "client-1", TierSensitive); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	decision, err := limiter.Allow(ctx, "client-1", TierSensitive)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on request 11, got %v", err)
	}
	if decision.Window != time.Hour {
		t.Fatalf("expected 60m window, got %v", decision.Window)
	}

	// Tiers are independent keys: the general budget is untouched.
	if _, err := limiter.Allow(ctx, "client-1", TierGeneral); err != nil {
		t.Fatalf("general tier must not be limited: %v", err)
	}
}

func TestRejectionDoesNotExtendWindow(t *testing.T) {
	limiter, mr, done := newLimiterTest(t, Config{
		General: TierConfig{Limit: 2, Window: time.Minute},
	})
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(ctx, "k", TierGeneral); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	mr.FastForward(30 * time.Second)
	if _, err := limiter.Allow(ctx, "k", TierGeneral); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rejection, got %v", err)
	}

	// Rejections count only against the current window; 30 more seconds
	// still reach the original reset point.
	mr.FastForward(30 * time.Second)
	decision, err := limiter.Allow(ctx, "k", TierGeneral)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected window reset, got %+v err=%v", decision, err)
	}
}

func TestConcurrentAcquisitionNeverOverAdmits(t *testing.T) {
	limiter, _, done := newLimiterTest(t, Config{
		General: TierConfig{Limit: 10, Window: time.Minute},
	})
	defer done()
	ctx := context.Background()

	const attempts = 40
	var wg sync.WaitGroup
	wg.Add(attempts)
	allowed := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if decision, err := limiter.Allow(ctx, "shared", TierGeneral); err == nil && decision.Allowed {
				allowed <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for range allowed {
		count++
	}
	if count != 10 {
		t.Fatalf("expected exactly 10 admissions, got %d", count)
	}
}

func TestUnknownTier(t *testing.T) {
	limiter, _, done := newLimiterTest(t, Config{})
	defer done()

	if _, err := limiter.Allow(context.Background(), "k", Tier("vip")); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestResetClearsWindow(t *testing.T) {
	limiter, _, done := newLimiterTest(t, Config{
		Sensitive: TierConfig{Limit: 1, Window: time.Hour},
	})
	defer done()
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "k", TierSensitive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := limiter.Allow(ctx, "k", TierSensitive); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if err := limiter.Reset(ctx, "k", TierSensitive); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if decision, err := limiter.Allow(ctx, "k", TierSensitive); err != nil || !decision.Allowed {
		t.Fatalf("expected allow after reset, got %+v err=%v", decision, err)
	}
}

func TestBackendUnavailable(t *testing.T) {
	limiter, mr, done := newLimiterTest(t, Config{})
	defer done()
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "k", TierGeneral); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
