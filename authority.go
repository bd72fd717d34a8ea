package authcore

import "context"

// Authority is the server side of the credential, MFA, and refresh
// exchanges the controller drives. Implementations classify failures with
// the package sentinels: [ErrInvalidCredentials], [ErrMFAInvalidCode],
// [ErrMFALockedOut], [ErrSessionExpired] for a rejected refresh token,
// and [ErrAuthorityUnavailable] for transient faults.
type Authority interface {
	// Login exchanges credentials for either a full token grant or an
	// MFA challenge (Grant.MFARequired with TempToken set).
	Login(ctx context.Context, creds Credentials) (*Grant, error)

	// VerifyMFA exchanges a challenge confirmation for a full grant.
	VerifyMFA(ctx context.Context, v MFAVerification) (*Grant, error)

	// Refresh rotates the token pair. A rejected refresh token is
	// ErrSessionExpired; everything else transient is
	// ErrAuthorityUnavailable.
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)

	// Logout revokes the refresh token server-side. Best effort: the
	// controller clears local state whether or not this succeeds.
	Logout(ctx context.Context, refreshToken string) error
}
