package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/techbridge/authcore/jwt"
	"github.com/techbridge/authcore/mfa"
	"github.com/techbridge/authcore/password"
	"github.com/techbridge/authcore/permission"
)

const (
	defaultRefreshTTL      = 30 * 24 * time.Hour
	defaultRefreshPrefix   = "rt"
	defaultTOTPReplayAfter = 2 * time.Minute

	mfaMethodTOTP = "totp"
)

// LocalAuthorityConfig tunes the in-process authority.
type LocalAuthorityConfig struct {
	// RefreshTTL bounds how long an unused refresh token stays valid.
	RefreshTTL time.Duration
	// KeyPrefix namespaces refresh-token and replay keys in Redis.
	KeyPrefix string
	TOTP      TOTPConfig
}

// LocalAuthority is a complete in-process [Authority]: Argon2id password
// verification, TOTP second factor with per-challenge attempt lockout,
// JWT access tokens, and opaque rotating refresh tokens stored in Redis.
//
// Privileged roles must have a second factor enrolled; their logins fail
// with [ErrMFAEnrollmentRequired] instead of granting an unverified
// session.
type LocalAuthority struct {
	users    UserProvider
	hasher   *password.Hasher
	tokens   *jwt.Manager
	verifier *mfa.Verifier
	totp     *totpVerifier
	redis    redis.UniversalClient
	config   LocalAuthorityConfig
	now      func() time.Time
}

// NewLocalAuthority wires the authority together. All collaborators are
// required except that cfg falls back to defaults.
func NewLocalAuthority(users UserProvider, hasher *password.Hasher, tokens *jwt.Manager, verifier *mfa.Verifier, redisClient redis.UniversalClient, cfg LocalAuthorityConfig) (*LocalAuthority, error) {
	if users == nil || hasher == nil || tokens == nil || verifier == nil || redisClient == nil {
		return nil, errors.New("local authority requires users, hasher, tokens, verifier, and redis")
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultRefreshPrefix
	}
	return &LocalAuthority{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		verifier: verifier,
		totp:     newTOTPVerifier(cfg.TOTP),
		redis:    redisClient,
		config:   cfg,
		now:      time.Now,
	}, nil
}

// refreshRecord is the payload stored behind each opaque refresh token.
type refreshRecord struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
	SID       string `json:"sid"`
}

func (a *LocalAuthority) refreshKey(token string) string {
	return a.config.KeyPrefix + ":" + token
}

func (a *LocalAuthority) replayKey(subjectID string) string {
	return a.config.KeyPrefix + ":totp-last:" + subjectID
}

// Login implements [Authority]. Unknown identifiers and wrong passwords
// are indistinguishable to the caller.
func (a *LocalAuthority) Login(ctx context.Context, creds Credentials) (*Grant, error) {
	user, err := a.users.FindByIdentifier(ctx, creds.Identifier)
	if errors.Is(err, ErrUserNotFound) {
		// Burn a hash anyway so the miss is not observable by timing.
		_, _ = a.hasher.Hash(creds.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	ok, err := a.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnrolled() {
		return a.openChallenge(ctx, user)
	}
	if user.Role.Privileged() {
		return nil, ErrMFAEnrollmentRequired
	}
	return a.issueGrant(ctx, user.ID, user.Role)
}

func (a *LocalAuthority) openChallenge(ctx context.Context, user *UserRecord) (*Grant, error) {
	challenge := mfa.Challenge{
		TempToken:      uuid.NewString(),
		SubjectID:      user.ID,
		Role:           string(user.Role),
		VerificationID: uuid.NewString(),
		Method:         mfaMethodTOTP,
	}
	if err := a.verifier.CreateChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	return &Grant{
		SubjectID:      user.ID,
		Role:           user.Role,
		MFARequired:    true,
		TempToken:      challenge.TempToken,
		VerificationID: challenge.VerificationID,
		MFAMethod:      challenge.Method,
	}, nil
}

// VerifyMFA implements [Authority]. Attempt counting and lockout live in
// the challenge verifier; this supplies the TOTP comparison as the
// exchange and reports the remaining budget through [MFAAttemptError].
func (a *LocalAuthority) VerifyMFA(ctx context.Context, v MFAVerification) (*Grant, error) {
	challenge, err := a.verifier.GetChallenge(ctx, v.TempToken)
	if err != nil {
		if errors.Is(err, mfa.ErrBackendUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
		}
		return nil, err
	}
	if v.VerificationID != "" && v.VerificationID != challenge.VerificationID {
		return nil, mfa.ErrChallengeNotFound
	}

	user, err := a.users.FindByID(ctx, challenge.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	result, err := a.verifier.Verify(ctx, v.TempToken, v.Token, func(exchCtx context.Context) error {
		return a.checkTOTP(exchCtx, user, v.Token)
	})
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrInvalidCode), errors.Is(err, mfa.ErrLockedOut):
			return nil, &MFAAttemptError{
				Err:               err,
				AttemptsRemaining: result.AttemptsRemaining,
				RetryAfter:        result.RetryAfter,
			}
		case errors.Is(err, mfa.ErrBackendUnavailable):
			return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
		default:
			return nil, err
		}
	}

	return a.issueGrant(ctx, user.ID, user.Role)
}

// checkTOTP compares the code and rejects replays of an already-used
// time step.
func (a *LocalAuthority) checkTOTP(ctx context.Context, user *UserRecord, code string) error {
	if !user.MFAEnrolled() {
		return mfa.ErrInvalidCode
	}

	ok, counter, err := a.totp.verify(user.TOTPSecret, code, a.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	if !ok {
		return mfa.ErrInvalidCode
	}

	last, err := a.redis.Get(ctx, a.replayKey(user.ID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	if err == nil && counter <= last {
		return mfa.ErrInvalidCode
	}
	err = a.redis.Set(ctx, a.replayKey(user.ID),
		strconv.FormatInt(counter, 10), defaultTOTPReplayAfter).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	return nil
}

// Refresh implements [Authority]. Refresh tokens are single use: the old
// token is consumed atomically before the new pair is issued, so a
// replayed token is rejected with [ErrSessionExpired].
func (a *LocalAuthority) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, ErrSessionExpired
	}

	data, err := a.redis.GetDel(ctx, a.refreshKey(refreshToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	var record refreshRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, ErrSessionExpired
	}

	role, ok := permission.Parse(record.Role)
	if !ok {
		return nil, ErrSessionExpired
	}
	return a.issueGrantSID(ctx, record.SubjectID, role, record.SID)
}

// Logout implements [Authority]: it revokes the refresh token. Unknown
// tokens succeed silently.
func (a *LocalAuthority) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := a.redis.Del(ctx, a.refreshKey(refreshToken)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	return nil
}

func (a *LocalAuthority) issueGrant(ctx context.Context, subjectID string, role permission.Role) (*Grant, error) {
	return a.issueGrantSID(ctx, subjectID, role, uuid.NewString())
}

func (a *LocalAuthority) issueGrantSID(ctx context.Context, subjectID string, role permission.Role, sid string) (*Grant, error) {
	now := a.now()
	access, expiresAt, err := a.tokens.Issue(subjectID, string(role), sid, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	refreshToken := uuid.NewString()
	payload, err := json.Marshal(refreshRecord{SubjectID: subjectID, Role: string(role), SID: sid})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	err = a.redis.Set(ctx, a.refreshKey(refreshToken), payload, a.config.RefreshTTL).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	return &Grant{
		SubjectID: subjectID,
		Role:      role,
		TokenPair: TokenPair{
			AccessToken:  access,
			RefreshToken: refreshToken,
			IssuedAt:     now,
			ExpiresAt:    expiresAt,
		},
	}, nil
}
