package authcore

import (
	"time"

	"github.com/techbridge/authcore/permission"
)

// State is the controller's position in the session lifecycle.
type State uint8

const (
	// StateAnonymous is the initial state: no session.
	StateAnonymous State = iota
	// StateAuthenticating is transient while a login exchange runs.
	StateAuthenticating
	// StateMFAPending means credentials were accepted and a second
	// factor is outstanding.
	StateMFAPending
	// StateAuthenticated means a full session is established.
	StateAuthenticated
	// StateExpired means the refresh token was rejected; terminal until
	// a new login.
	StateExpired
	// StateLoggedOut is the explicit-logout terminal state.
	StateLoggedOut
)

var stateNames = [...]string{
	StateAnonymous:      "anonymous",
	StateAuthenticating: "authenticating",
	StateMFAPending:     "mfa_pending",
	StateAuthenticated:  "authenticated",
	StateExpired:        "expired",
	StateLoggedOut:      "logged_out",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Credentials is the login input.
type Credentials struct {
	Identifier string
	Password   string
}

// TokenPair is one access/refresh token issuance.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Grant is the authority's answer to a login, MFA confirmation, or
// refresh exchange. Either MFARequired is set with challenge metadata, or
// the token pair is populated.
type Grant struct {
	SubjectID string
	Role      permission.Role

	MFARequired    bool
	TempToken      string
	VerificationID string
	MFAMethod      string

	TokenPair
}

// MFAVerification is the wire shape of an MFA confirmation request.
type MFAVerification struct {
	Token          string `json:"token"`
	TempToken      string `json:"tempToken"`
	Method         string `json:"method"`
	VerificationID string `json:"verificationId"`
}

// LoginResult is returned by [Controller.Login]. When MFARequired is set
// the caller must follow up with [Controller.VerifyMFA]; otherwise the
// session is established and the pair is populated.
type LoginResult struct {
	MFARequired    bool
	TempToken      string
	VerificationID string
	MFAMethod      string

	SubjectID string
	Role      permission.Role
	TokenPair
}
