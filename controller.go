package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/techbridge/authcore/audit"
	"github.com/techbridge/authcore/mfa"
	"github.com/techbridge/authcore/session"
)

// MFAAttemptError decorates an MFA rejection or lockout with the
// user-facing bookkeeping. errors.Is against [ErrMFAInvalidCode] or
// [ErrMFALockedOut] still matches through it.
type MFAAttemptError struct {
	Err               error
	AttemptsRemaining int
	RetryAfter        time.Duration
}

func (e *MFAAttemptError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter)
	}
	return fmt.Sprintf("%v (%d attempts remaining)", e.Err, e.AttemptsRemaining)
}

func (e *MFAAttemptError) Unwrap() error { return e.Err }

type pendingChallenge struct {
	tempToken      string
	verificationID string
	method         string
	subjectID      string
	role           string
}

// Controller is the client-side session state machine. It serializes
// login, MFA verification, and logout under one mutex; token refresh runs
// outside the mutex as a single flight so concurrent triggers collapse
// into one authority exchange.
//
// Stale refresh results are fenced by an epoch counter: every commit,
// logout, and expiry bumps the epoch, and a refresh that completes
// against an older epoch is discarded without touching state.
type Controller struct {
	authority Authority
	store     *session.Store
	sink      audit.Sink
	config    ControllerConfig
	now       func() time.Time

	mu        sync.Mutex
	state     State
	sess      *session.Session
	challenge *pendingChallenge
	epoch     uint64

	refresh       singleflight.Group
	refreshCancel context.CancelFunc
}

// NewController creates a Controller in [StateAnonymous]. store and sink
// may be nil (no persistence, no audit).
func NewController(authority Authority, store *session.Store, sink audit.Sink, cfg ControllerConfig) (*Controller, error) {
	if authority == nil {
		return nil, errors.New("controller requires an authority")
	}
	cfg.applyDefaults()
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	return &Controller{
		authority: authority,
		store:     store,
		sink:      sink,
		config:    cfg,
		now:       time.Now,
		state:     StateAnonymous,
	}, nil
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the established session, or nil outside
// [StateAuthenticated].
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated || c.sess == nil {
		return nil
	}
	copied := *c.sess
	return &copied
}

// Resume rehydrates the controller from the persisted slot, e.g. after a
// process restart. A valid stored session moves the controller to
// [StateAuthenticated]; an expired one clears the slot and leaves the
// controller in [StateExpired]. An empty slot is a no-op.
func (c *Controller) Resume(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAnonymous {
		return errors.New("resume requires an anonymous controller")
	}

	sess, err := c.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	if !sess.Authenticated(c.now()) {
		c.state = StateExpired
		c.epoch++
		_ = c.store.Clear(ctx)
		c.emit(ctx, audit.EventSessionExpired, sess.SubjectID, sess.Role, false, nil, nil)
		return ErrSessionExpired
	}

	c.sess = sess
	c.state = StateAuthenticated
	c.epoch++
	return nil
}

// Login validates the credentials locally, then exchanges them with the
// authority. Depending on the grant, the controller lands in
// [StateAuthenticated] (LoginResult carries the token pair) or
// [StateMFAPending] (LoginResult carries the challenge metadata).
//
// A failed exchange returns the controller to [StateAnonymous]. The
// mutex is held across the exchange, so concurrent logins serialize and
// the last one to commit wins the session slot.
func (c *Controller) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	c.state = StateAuthenticating

	exchCtx, cancel := context.WithTimeout(ctx, c.config.ExchangeTimeout)
	grant, err := c.authority.Login(exchCtx, creds)
	cancel()
	if err != nil {
		// A failed exchange never disturbs whatever session existed
		// before the attempt.
		c.state = prev
		err = classifyExchangeErr(err)
		c.emit(ctx, audit.EventLogin, creds.Identifier, "", false, err, nil)
		return nil, err
	}

	if grant.MFARequired {
		c.challenge = &pendingChallenge{
			tempToken:      grant.TempToken,
			verificationID: grant.VerificationID,
			method:         grant.MFAMethod,
			subjectID:      grant.SubjectID,
			role:           string(grant.Role),
		}
		c.state = StateMFAPending
		c.emit(ctx, audit.EventMFAChallenge, grant.SubjectID, string(grant.Role), true, nil,
			map[string]string{"method": grant.MFAMethod})
		return &LoginResult{
			MFARequired:    true,
			TempToken:      grant.TempToken,
			VerificationID: grant.VerificationID,
			MFAMethod:      grant.MFAMethod,
		}, nil
	}

	if err := c.commitLocked(ctx, grant, false); err != nil {
		c.state = StateAnonymous
		c.emit(ctx, audit.EventLogin, grant.SubjectID, string(grant.Role), false, err, nil)
		return nil, err
	}
	c.emit(ctx, audit.EventLogin, grant.SubjectID, string(grant.Role), true, nil, nil)
	return &LoginResult{
		SubjectID: grant.SubjectID,
		Role:      grant.Role,
		TokenPair: grant.TokenPair,
	}, nil
}

// VerifyMFA confirms the pending second factor with the given code. On
// success the session is established; an invalid code or active lockout
// keeps the controller in [StateMFAPending] (see [MFAAttemptError] for
// the remaining budget), and an expired challenge drops it back to
// [StateAnonymous].
func (c *Controller) VerifyMFA(ctx context.Context, code string) (*LoginResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateMFAPending || c.challenge == nil {
		return nil, fmt.Errorf("%w: no pending mfa challenge", ErrAuthentication)
	}
	ch := c.challenge

	req := MFAVerification{
		Token:          code,
		TempToken:      ch.tempToken,
		Method:         ch.method,
		VerificationID: ch.verificationID,
	}
	if err := ValidateMFAVerification(req); err != nil {
		return nil, err
	}

	exchCtx, cancel := context.WithTimeout(ctx, c.config.ExchangeTimeout)
	grant, err := c.authority.VerifyMFA(exchCtx, req)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, ErrMFAInvalidCode), errors.Is(err, ErrMFALockedOut),
			errors.Is(err, mfa.ErrInvalidFormat):
			// Challenge survives; the user may retry after the cool-down.
			if errors.Is(err, ErrMFALockedOut) {
				c.emit(ctx, audit.EventMFALockout, ch.subjectID, ch.role, false, err, nil)
			} else {
				c.emit(ctx, audit.EventMFAVerify, ch.subjectID, ch.role, false, err, nil)
			}
			return nil, err
		case errors.Is(err, mfa.ErrChallengeNotFound):
			c.challenge = nil
			c.state = StateAnonymous
			err = fmt.Errorf("%w: mfa challenge expired", ErrAuthentication)
			c.emit(ctx, audit.EventMFAVerify, ch.subjectID, ch.role, false, err, nil)
			return nil, err
		default:
			err = classifyExchangeErr(err)
			c.emit(ctx, audit.EventMFAVerify, ch.subjectID, ch.role, false, err, nil)
			return nil, err
		}
	}

	c.challenge = nil
	if err := c.commitLocked(ctx, grant, true); err != nil {
		c.state = StateAnonymous
		c.emit(ctx, audit.EventMFAVerify, grant.SubjectID, string(grant.Role), false, err, nil)
		return nil, err
	}
	c.emit(ctx, audit.EventMFAVerify, grant.SubjectID, string(grant.Role), true, nil, nil)
	return &LoginResult{
		SubjectID: grant.SubjectID,
		Role:      grant.Role,
		TokenPair: grant.TokenPair,
	}, nil
}

// Refresh rotates the token pair. Concurrent callers (the scheduler tick
// plus any manual trigger) collapse into one authority exchange and all
// receive its outcome.
//
// A rejected refresh token moves the controller to [StateExpired] and
// clears stored state; a transient failure leaves the session untouched
// and surfaces [ErrAuthorityUnavailable]. A result that lands after the
// epoch has moved (logout, expiry, or a newer login) is discarded.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateAuthenticated || c.sess == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active session to refresh", ErrAuthentication)
	}
	refreshToken := c.sess.RefreshToken
	epoch := c.epoch
	c.mu.Unlock()

	_, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		// Detached from any single caller so one caller's cancellation
		// cannot fail the shared flight; logout cancels it explicitly.
		exchCtx, cancel := context.WithTimeout(context.Background(), c.config.ExchangeTimeout)
		c.mu.Lock()
		c.refreshCancel = cancel
		c.mu.Unlock()
		defer func() {
			cancel()
			c.mu.Lock()
			c.refreshCancel = nil
			c.mu.Unlock()
		}()

		grant, exchErr := c.authority.Refresh(exchCtx, refreshToken)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			// Superseded by logout, expiry, or a newer login.
			return nil, nil
		}

		switch {
		case exchErr == nil:
			now := c.now()
			c.sess.AccessToken = grant.AccessToken
			c.sess.RefreshToken = grant.RefreshToken
			c.sess.ExpiresAt = grant.ExpiresAt
			c.sess.LastActivity = now
			if c.store != nil {
				_ = c.store.UpdateTokens(context.Background(),
					grant.AccessToken, grant.RefreshToken, grant.ExpiresAt, now)
			}
			c.emit(exchCtx, audit.EventRefresh, c.sess.SubjectID, c.sess.Role, true, nil, nil)
			return nil, nil

		case errors.Is(exchErr, ErrSessionExpired):
			subject, role := c.sess.SubjectID, c.sess.Role
			c.expireLocked()
			c.emit(exchCtx, audit.EventRefresh, subject, role, false, exchErr, nil)
			return nil, ErrSessionExpired

		default:
			classified := classifyExchangeErr(exchErr)
			c.emit(exchCtx, audit.EventRefresh, c.sess.SubjectID, c.sess.Role, false, classified, nil)
			return nil, classified
		}
	})
	return err
}

// CheckExpiry compares the session expiry against the clock and, if
// passed, transitions to [StateExpired] and clears stored state. Returns
// true when a transition happened.
func (c *Controller) CheckExpiry(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated || c.sess == nil || c.sess.Valid(c.now()) {
		return false
	}
	subject, role := c.sess.SubjectID, c.sess.Role
	c.expireLocked()
	c.emit(ctx, audit.EventSessionExpired, subject, role, false, nil, nil)
	return true
}

// Logout tears the session down from any state: it cancels an in-flight
// refresh, bumps the epoch so a late refresh result is discarded, clears
// persisted state, and notifies the authority best-effort. Idempotent;
// always succeeds locally.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateAnonymous || c.state == StateLoggedOut {
		c.mu.Unlock()
		return nil
	}
	if c.refreshCancel != nil {
		c.refreshCancel()
	}
	var refreshToken, subject, role string
	if c.sess != nil {
		refreshToken = c.sess.RefreshToken
		subject = c.sess.SubjectID
		role = c.sess.Role
	} else if c.challenge != nil {
		subject = c.challenge.subjectID
		role = c.challenge.role
	}
	c.sess = nil
	c.challenge = nil
	c.state = StateLoggedOut
	c.epoch++
	c.mu.Unlock()

	if refreshToken != "" {
		exchCtx, cancel := context.WithTimeout(ctx, c.config.ExchangeTimeout)
		_ = c.authority.Logout(exchCtx, refreshToken)
		cancel()
	}
	if c.store != nil {
		_ = c.store.Clear(ctx)
	}
	c.emit(ctx, audit.EventLogout, subject, role, true, nil, nil)
	return nil
}

// commitLocked installs a full grant as the active session. Caller holds
// the mutex.
func (c *Controller) commitLocked(ctx context.Context, grant *Grant, mfaVerified bool) error {
	now := c.now()
	issuedAt := grant.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}
	sess := &session.Session{
		SubjectID:    grant.SubjectID,
		Role:         string(grant.Role),
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    grant.ExpiresAt,
		LastActivity: now,
		MFAVerified:  mfaVerified || !grant.MFARequired,
	}
	if c.store != nil {
		if err := c.store.Save(ctx, sess); err != nil {
			return err
		}
	}
	c.sess = sess
	c.state = StateAuthenticated
	c.epoch++
	return nil
}

// expireLocked moves to StateExpired and clears all session material.
// Caller holds the mutex.
func (c *Controller) expireLocked() {
	c.sess = nil
	c.challenge = nil
	c.state = StateExpired
	c.epoch++
	if c.store != nil {
		_ = c.store.Clear(context.Background())
	}
}

func (c *Controller) emit(ctx context.Context, eventType, subject, role string, success bool, err error, meta map[string]string) {
	event := audit.Event{
		Timestamp: c.now(),
		EventType: eventType,
		Subject:   subject,
		Role:      role,
		IP:        ClientIP(ctx),
		Success:   success,
		Metadata:  meta,
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.sink.Emit(ctx, event)
}

// classifyExchangeErr maps transport-level failures onto
// ErrAuthorityUnavailable while letting domain sentinels pass through.
func classifyExchangeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrMFAInvalidCode),
		errors.Is(err, ErrMFALockedOut),
		errors.Is(err, ErrMFAEnrollmentRequired),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	case errors.Is(err, ErrAuthorityUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
}
