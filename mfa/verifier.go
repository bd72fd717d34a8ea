package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidFormat rejects codes failing the local format heuristic.
	// No authority exchange happens and no attempt is consumed.
	ErrInvalidFormat = errors.New("mfa code format invalid")
	// ErrInvalidCode is returned when the authority rejects the code.
	// Exchange callbacks must return (or wrap) this sentinel so the
	// verifier can tell a rejection from a transient outage.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrLockedOut is returned while the challenge's cool-down is active.
	ErrLockedOut = errors.New("mfa attempts exhausted")
	// ErrChallengeNotFound is returned for unknown or expired temp tokens.
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	// ErrBackendUnavailable wraps Redis transport failures.
	ErrBackendUnavailable = errors.New("mfa backend unavailable")
)

const (
	defaultMaxAttempts  = 5
	defaultLockout      = 5 * time.Minute
	defaultChallengeTTL = 5 * time.Minute
	defaultKeyPrefix    = "mfa"

	codeLength = 6
)

// Ascending six-digit sequences rejected by the weak-code heuristic.
var ascendingSequences = map[string]struct{}{
	"012345": {},
	"123456": {},
	"234567": {},
	"345678": {},
	"456789": {},
	"567890": {},
}

// Config holds verifier thresholds. Zero-value fields fall back to the
// defaults (5 attempts, 5 minute cool-down, 5 minute challenge TTL).
type Config struct {
	MaxAttempts  int
	Lockout      time.Duration
	ChallengeTTL time.Duration
	KeyPrefix    string
}

// Challenge is a pending second-factor verification created at login.
type Challenge struct {
	TempToken      string `json:"temp_token"`
	SubjectID      string `json:"subject_id"`
	Role           string `json:"role"`
	VerificationID string `json:"verification_id"`
	Method         string `json:"method"`
}

// Result carries the caller-visible outcome details: attempts left after a
// rejection, or the cool-down remaining after a lockout.
type Result struct {
	AttemptsRemaining int
	RetryAfter        time.Duration
}

// Verifier tracks per-challenge attempt counts and lockout state in Redis.
// Counter updates are single INCR/SET commands, so concurrent attempts
// against one challenge cannot both pass the threshold.
type Verifier struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Verifier backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Verifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = defaultLockout
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Verifier{redis: redisClient, config: cfg}
}

func (v *Verifier) challengeKey(tempToken string) string {
	return v.config.KeyPrefix + ":ch:" + tempToken
}

func (v *Verifier) attemptsKey(tempToken string) string {
	return v.config.KeyPrefix + ":att:" + tempToken
}

func (v *Verifier) lockKey(tempToken string) string {
	return v.config.KeyPrefix + ":lock:" + tempToken
}

// MaxAttempts returns the configured attempt budget.
func (v *Verifier) MaxAttempts() int {
	return v.config.MaxAttempts
}

// ValidateFormat applies the local weak-code heuristic: exactly six
// numeric digits, not a single repeated digit, and not one of the known
// ascending sequences. This is a hygiene filter, not a cryptographic check.
func (v *Verifier) ValidateFormat(code string) error {
	if len(code) != codeLength {
		return ErrInvalidFormat
	}
	repeated := true
	for i := 0; i < codeLength; i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidFormat
		}
		if code[i] != code[0] {
			repeated = false
		}
	}
	if repeated {
		return ErrInvalidFormat
	}
	if _, weak := ascendingSequences[code]; weak {
		return ErrInvalidFormat
	}
	return nil
}

// CreateChallenge persists a fresh challenge under its temp token. Any
// prior attempt or lock state for the token is cleared.
func (v *Verifier) CreateChallenge(ctx context.Context, ch Challenge) error {
	if ch.TempToken == "" {
		return errors.New("mfa challenge requires a temp token")
	}
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	_, err = v.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, v.challengeKey(ch.TempToken), data, v.config.ChallengeTTL)
		pipe.Del(ctx, v.attemptsKey(ch.TempToken), v.lockKey(ch.TempToken))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// GetChallenge loads the pending challenge for a temp token.
func (v *Verifier) GetChallenge(ctx context.Context, tempToken string) (*Challenge, error) {
	data, err := v.redis.Get(ctx, v.challengeKey(tempToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var ch Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, ErrChallengeNotFound
	}
	return &ch, nil
}

// Verify runs the attempt/lockout bookkeeping around one authority
// exchange for the challenge identified by tempToken.
//
// While the challenge is locked, Verify returns [ErrLockedOut] with the
// remaining cool-down and never invokes the exchange, regardless of code
// correctness. Otherwise the exchange is called: a nil return clears the
// challenge and resets attempt state; [ErrInvalidCode] consumes an attempt
// and, at the configured maximum, arms the lock; any other error is a
// transient authority failure, returned as-is without consuming an attempt.
func (v *Verifier) Verify(ctx context.Context, tempToken, code string, exchange func(context.Context) error) (Result, error) {
	if err := v.ValidateFormat(code); err != nil {
		return Result{}, err
	}

	lockTTL, err := v.redis.PTTL(ctx, v.lockKey(tempToken)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if lockTTL > 0 {
		return Result{RetryAfter: lockTTL}, ErrLockedOut
	}

	if _, err := v.GetChallenge(ctx, tempToken); err != nil {
		return Result{}, err
	}

	exchangeErr := exchange(ctx)
	switch {
	case exchangeErr == nil:
		if err := v.clear(ctx, tempToken); err != nil {
			return Result{}, err
		}
		return Result{AttemptsRemaining: v.config.MaxAttempts}, nil

	case errors.Is(exchangeErr, ErrInvalidCode):
		attempts, err := v.redis.Incr(ctx, v.attemptsKey(tempToken)).Result()
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if attempts == 1 {
			// Attempt counter lives no longer than the challenge itself.
			if err := v.redis.Expire(ctx, v.attemptsKey(tempToken), v.config.ChallengeTTL).Err(); err != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
		}
		if attempts >= int64(v.config.MaxAttempts) {
			// Arm the cool-down and reset the counter, so a challenge
			// surviving the lock starts from zero attempts.
			_, err := v.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, v.lockKey(tempToken), "1", v.config.Lockout)
				pipe.Del(ctx, v.attemptsKey(tempToken))
				// Keep the challenge alive through the cool-down so a
				// correct code can still complete once the lock expires.
				pipe.Expire(ctx, v.challengeKey(tempToken), v.config.Lockout+v.config.ChallengeTTL)
				return nil
			})
			if err != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			return Result{RetryAfter: v.config.Lockout}, ErrLockedOut
		}
		return Result{AttemptsRemaining: v.config.MaxAttempts - int(attempts)}, ErrInvalidCode

	default:
		// Transient authority failure: reported, never counted.
		return Result{}, exchangeErr
	}
}

// Abandon discards the challenge and all attempt state, e.g. when the
// user cancels the login or the session is torn down. Idempotent.
func (v *Verifier) Abandon(ctx context.Context, tempToken string) error {
	return v.clear(ctx, tempToken)
}

func (v *Verifier) clear(ctx context.Context, tempToken string) error {
	err := v.redis.Del(ctx,
		v.challengeKey(tempToken),
		v.attemptsKey(tempToken),
		v.lockKey(tempToken),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
