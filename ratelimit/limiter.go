package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier classifies endpoints into rate budgets.
type Tier string

const (
	// TierGeneral covers ordinary read/write endpoints.
	TierGeneral Tier = "general"
	// TierSensitive covers destructive or security-relevant endpoints.
	TierSensitive Tier = "sensitive"
)

var (
	// ErrRateLimited is returned when a window's budget is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrBackendUnavailable wraps Redis transport failures.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
	// ErrUnknownTier is returned for tiers without a configured budget.
	ErrUnknownTier = errors.New("unknown rate limit tier")
)

const (
	defaultGeneralLimit    = 100
	defaultGeneralWindow   = 15 * time.Minute
	defaultSensitiveLimit  = 10
	defaultSensitiveWindow = time.Hour
	defaultKeyPrefix       = "rl"
)

// TierConfig is one tier's budget: at most Limit requests per Window.
type TierConfig struct {
	Limit  int
	Window time.Duration
}

// Config holds per-tier budgets and the Redis key namespace. Zero-value
// fields fall back to the defaults (general 100/15m, sensitive 10/60m).
type Config struct {
	General   TierConfig
	Sensitive TierConfig
	KeyPrefix string
}

// Decision reports the outcome of one acquisition attempt. When Allowed is
// false, RetryAfter is the time until the current window resets.
type Decision struct {
	Allowed    bool
	Remaining  int
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

// Limiter enforces fixed-window budgets keyed by (identity, tier).
// All state lives in Redis; the Limiter itself is stateless and safe for
// concurrent use.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.General.Limit <= 0 {
		cfg.General.Limit = defaultGeneralLimit
	}
	if cfg.General.Window <= 0 {
		cfg.General.Window = defaultGeneralWindow
	}
	if cfg.Sensitive.Limit <= 0 {
		cfg.Sensitive.Limit = defaultSensitiveLimit
	}
	if cfg.Sensitive.Window <= 0 {
		cfg.Sensitive.Window = defaultSensitiveWindow
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) key(identity string, tier Tier) string {
	return l.config.KeyPrefix + ":" + string(tier) + ":" + identity
}

func (l *Limiter) tierConfig(tier Tier) (TierConfig, error) {
	switch tier {
	case TierGeneral:
		return l.config.General, nil
	case TierSensitive:
		return l.config.Sensitive, nil
	default:
		return TierConfig{}, ErrUnknownTier
	}
}

// Allow attempts to take one slot from the identity's window in the given
// tier. The increment-and-check is a single Redis INCR, so two concurrent
// requests against the same key can never both slip under the limit.
//
// The request that crosses the limit is rejected with [ErrRateLimited] and
// a Decision carrying the window and retry-after duration.
func (l *Limiter) Allow(ctx context.Context, identity string, tier Tier) (Decision, error) {
	tc, err := l.tierConfig(tier)
	if err != nil {
		return Decision{}, err
	}

	key := l.key(identity, tier)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// First hit opens the window; the TTL is never extended afterwards.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, tc.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if count > int64(tc.Limit) {
		retryAfter, err := l.redis.PTTL(ctx, key).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if retryAfter <= 0 {
			// Counter without a TTL (lost expire); re-arm the window so
			// the key cannot leak forever.
			if err := l.redis.Expire(ctx, key, tc.Window).Err(); err != nil {
				return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			retryAfter = tc.Window
		}
		return Decision{
			Allowed:    false,
			Remaining:  0,
			Limit:      tc.Limit,
			Window:     tc.Window,
			RetryAfter: retryAfter,
		}, ErrRateLimited
	}

	return Decision{
		Allowed:   true,
		Remaining: tc.Limit - int(count),
		Limit:     tc.Limit,
		Window:    tc.Window,
	}, nil
}

// Reset clears the identity's window in the given tier.
func (l *Limiter) Reset(ctx context.Context, identity string, tier Tier) error {
	if err := l.redis.Del(ctx, l.key(identity, tier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
