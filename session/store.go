package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoSession is returned by Load when the slot is empty.
	ErrNoSession = errors.New("no stored session")
	// ErrStoreUnavailable wraps backend transport failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Fixed field keys, stable across releases. External readers (the UI)
// depend on these names; change them only with a migration.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeySubjectID    = "subject_id"
	KeyRole         = "role"
	KeyIssuedAt     = "issued_at"
	KeyExpiresAt    = "expires_at"
	KeyLastActivity = "last_activity"
	KeyMFAVerified  = "mfa_verified"
)

var fieldKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeySubjectID,
	KeyRole,
	KeyIssuedAt,
	KeyExpiresAt,
	KeyLastActivity,
	KeyMFAVerified,
}

// Store persists one session per client instance. Every field lives under
// "<prefix>:<field key>"; Save overwrites the whole slot atomically, so
// the store-level rule for concurrent logins is last writer wins.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store. prefix namespaces the slot, typically
// "auth:<client instance id>".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "auth"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(field string) string {
	return s.prefix + ":" + field
}

// Save writes the full session into the slot, replacing any prior
// occupant.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyAccessToken), sess.AccessToken, 0)
		pipe.Set(ctx, s.key(KeyRefreshToken), sess.RefreshToken, 0)
		pipe.Set(ctx, s.key(KeySubjectID), sess.SubjectID, 0)
		pipe.Set(ctx, s.key(KeyRole), sess.Role, 0)
		pipe.Set(ctx, s.key(KeyIssuedAt), strconv.FormatInt(sess.IssuedAt.Unix(), 10), 0)
		pipe.Set(ctx, s.key(KeyExpiresAt), strconv.FormatInt(sess.ExpiresAt.Unix(), 10), 0)
		pipe.Set(ctx, s.key(KeyLastActivity), strconv.FormatInt(sess.LastActivity.Unix(), 10), 0)
		pipe.Set(ctx, s.key(KeyMFAVerified), strconv.FormatBool(sess.MFAVerified), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load reads the slot. An empty slot (no access token) yields
// [ErrNoSession].
func (s *Store) Load(ctx context.Context) (*Session, error) {
	keys := make([]string, len(fieldKeys))
	for i, f := range fieldKeys {
		keys[i] = s.key(f)
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	fields := make(map[string]string, len(fieldKeys))
	for i, f := range fieldKeys {
		if str, ok := values[i].(string); ok {
			fields[f] = str
		}
	}
	if fields[KeyAccessToken] == "" {
		return nil, ErrNoSession
	}

	sess := &Session{
		AccessToken:  fields[KeyAccessToken],
		RefreshToken: fields[KeyRefreshToken],
		SubjectID:    fields[KeySubjectID],
		Role:         fields[KeyRole],
		IssuedAt:     parseUnix(fields[KeyIssuedAt]),
		ExpiresAt:    parseUnix(fields[KeyExpiresAt]),
		LastActivity: parseUnix(fields[KeyLastActivity]),
		MFAVerified:  fields[KeyMFAVerified] == "true",
	}
	return sess, nil
}

// UpdateTokens replaces the token pair and expiry after a refresh
// rotation, leaving identity fields untouched.
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt, now time.Time) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyAccessToken), accessToken, 0)
		pipe.Set(ctx, s.key(KeyRefreshToken), refreshToken, 0)
		pipe.Set(ctx, s.key(KeyExpiresAt), strconv.FormatInt(expiresAt.Unix(), 10), 0)
		pipe.Set(ctx, s.key(KeyLastActivity), strconv.FormatInt(now.Unix(), 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Touch records activity without rewriting the rest of the slot.
func (s *Store) Touch(ctx context.Context, now time.Time) error {
	err := s.redis.Set(ctx, s.key(KeyLastActivity), strconv.FormatInt(now.Unix(), 10), 0).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear empties the slot. Idempotent: clearing an empty slot succeeds.
func (s *Store) Clear(ctx context.Context) error {
	keys := make([]string, len(fieldKeys))
	for i, f := range fieldKeys {
		keys[i] = s.key(f)
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func parseUnix(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
