package authcore

import (
	"errors"

	"github.com/techbridge/authcore/mfa"
)

var (
	// ErrValidation covers malformed local input (400-equivalent).
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication covers missing, invalid, or expired tokens and
	// operations attempted without a session (401-equivalent).
	ErrAuthentication = errors.New("authentication failed")
	// ErrInvalidCredentials is returned by login on a bad
	// identifier/password pair (401-equivalent).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthorization means authenticated but lacking the required role
	// or permission (403-equivalent).
	ErrAuthorization = errors.New("insufficient role or permission")
	// ErrRateLimited is re-exported for callers of the middleware layer
	// (429-equivalent, carries retry-after at the rejection site).
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionExpired means the refresh token itself was rejected; the
	// client is forced back to Anonymous and storage is cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrAuthorityUnavailable marks transient authority failures
	// (timeouts, outages). Reported to the caller, never retried inline;
	// the refresh scheduler's next tick is the only retry path.
	ErrAuthorityUnavailable = errors.New("authority unavailable")
	// ErrMFAEnrollmentRequired is returned when a privileged role has no
	// enrolled second factor.
	ErrMFAEnrollmentRequired = errors.New("mfa enrollment required")

	// MFA sentinels are shared with package mfa so authority
	// implementations and the controller classify identically.

	// ErrMFAInvalidCode is the authority's code rejection.
	ErrMFAInvalidCode = mfa.ErrInvalidCode
	// ErrMFALockedOut means the attempt budget is exhausted and the
	// cool-down is in effect.
	ErrMFALockedOut = mfa.ErrLockedOut
)
