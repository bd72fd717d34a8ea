// Command authcore-loadtest hammers the fixed-window rate limiter and
// the session store to measure Redis round-trip throughput. With no
// -redis-addr it runs against an embedded miniredis, which measures the
// code path rather than a real network.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/techbridge/authcore/ratelimit"
	"github.com/techbridge/authcore/session"
)

func main() {
	var (
		identities  = flag.Int("identities", 1000, "number of distinct rate-limit identities")
		concurrency = flag.Int("concurrency", 64, "concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; empty uses REDIS_ADDR or embedded miniredis")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using embedded miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewClient(&redis.Options{Addr: addr, PoolSize: *concurrency})
	defer client.Close()
	ctx := context.Background()

	runLimiterPhase(ctx, client, *identities, *concurrency, *ops)
	runStorePhase(ctx, client, *concurrency, *ops)
}

func runLimiterPhase(ctx context.Context, client redis.UniversalClient, identities, concurrency, ops int) {
	limiter := ratelimit.New(client, ratelimit.Config{
		General: ratelimit.TierConfig{Limit: 100, Window: 15 * time.Minute},
	})

	var allowed, rejected, failed atomic.Uint64
	start := time.Now()
	runWorkers(concurrency, ops, func(r *rand.Rand) {
		identity := fmt.Sprintf("subject-%d", r.Intn(identities))
		_, err := limiter.Allow(ctx, identity, ratelimit.TierGeneral)
		switch {
		case err == nil:
			allowed.Add(1)
		case errors.Is(err, ratelimit.ErrRateLimited):
			rejected.Add(1)
		default:
			failed.Add(1)
		}
	})
	elapsed := time.Since(start)

	fmt.Printf("limiter: %d ops in %s (%.0f ops/s), allowed=%d rejected=%d errors=%d\n",
		ops, elapsed.Round(time.Millisecond), float64(ops)/elapsed.Seconds(),
		allowed.Load(), rejected.Load(), failed.Load())
}

func runStorePhase(ctx context.Context, client redis.UniversalClient, concurrency, ops int) {
	store := session.NewStore(client, "auth:loadtest")
	now := time.Now()
	seed := &session.Session{
		SubjectID:    "subject-0",
		Role:         "RESEARCHER",
		AccessToken:  "access-seed",
		RefreshToken: "refresh-seed",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		LastActivity: now,
		MFAVerified:  true,
	}
	if err := store.Save(ctx, seed); err != nil {
		fmt.Fprintf(os.Stderr, "seed session: %v\n", err)
		os.Exit(1)
	}

	var failed atomic.Uint64
	start := time.Now()
	runWorkers(concurrency, ops, func(r *rand.Rand) {
		var err error
		if r.Intn(10) == 0 {
			err = store.Touch(ctx, time.Now())
		} else {
			_, err = store.Load(ctx)
		}
		if err != nil {
			failed.Add(1)
		}
	})
	elapsed := time.Since(start)

	fmt.Printf("store: %d ops in %s (%.0f ops/s), errors=%d\n",
		ops, elapsed.Round(time.Millisecond), float64(ops)/elapsed.Seconds(), failed.Load())
}

func runWorkers(concurrency, ops int, op func(*rand.Rand)) {
	var wg sync.WaitGroup
	perWorker := ops / concurrency
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				op(r)
			}
		}(int64(w) + 1)
	}
	wg.Wait()
}
