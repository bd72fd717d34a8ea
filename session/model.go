package session

import "time"

// Session is the client-side authentication state for one subject.
type Session struct {
	SubjectID    string
	Role         string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	MFAVerified  bool
}

// Valid reports whether the access token is still inside its lifetime:
// valid if and only if now is before ExpiresAt.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// Authenticated reports whether the session may be treated as fully
// authenticated: a valid token AND a completed second factor. A session
// with MFAVerified false is never fully authenticated.
func (s *Session) Authenticated(now time.Time) bool {
	return s.Valid(now) && s.MFAVerified
}

// Remaining returns the time left before expiry, negative once expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
