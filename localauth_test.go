package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/techbridge/authcore/jwt"
	"github.com/techbridge/authcore/mfa"
	"github.com/techbridge/authcore/password"
	"github.com/techbridge/authcore/permission"
)

var totpTestSecret = []byte("12345678901234567890")

func newAuthorityTest(t *testing.T) (*LocalAuthority, *MemoryUserProvider, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hasher, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("test-secret-test-secret-test-1234"),
		Issuer:        "authcore-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	users := NewMemoryUserProvider()
	authority, err := NewLocalAuthority(users, hasher, tokens, mfa.New(rdb, mfa.Config{}), rdb, LocalAuthorityConfig{})
	if err != nil {
		t.Fatalf("NewLocalAuthority failed: %v", err)
	}

	seed := func(id, identifier, pass string, role permission.Role, secret []byte) {
		hash, err := hasher.Hash(pass)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		err = users.Add(UserRecord{
			ID:           id,
			Identifier:   identifier,
			PasswordHash: hash,
			Role:         role,
			TOTPSecret:   secret,
		})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	seed("u-res", "researcher@example.org", "plain password", permission.RoleResearcher, nil)
	seed("u-adm", "admin@example.org", "admin password", permission.RoleAdmin, totpTestSecret)
	seed("u-tto", "tto@example.org", "tto password!", permission.RoleTTO, nil)

	return authority, users, func() {
		rdb.Close()
		mr.Close()
	}
}

// validCode computes the code an authenticator would show at the
// authority's current clock.
func validCode(t *testing.T, a *LocalAuthority) string {
	t.Helper()
	code, err := hotpCode(totpTestSecret, a.now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func TestAuthorityLoginUnknownUser(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()

	_, err := authority.Login(context.Background(), Credentials{
		Identifier: "nobody@example.org",
		Password:   "whatever pass",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthorityLoginWrongPassword(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()

	_, err := authority.Login(context.Background(), Credentials{
		Identifier: "researcher@example.org",
		Password:   "not the password",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthorityLoginWithoutMFA(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()
	ctx := context.Background()

	grant, err := authority.Login(ctx, Credentials{
		Identifier: "researcher@example.org",
		Password:   "plain password",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if grant.MFARequired {
		t.Fatal("researcher login must not require MFA")
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		t.Fatalf("expected a full token pair, got %+v", grant)
	}

	claims, err := authority.tokens.Parse(grant.AccessToken)
	if err != nil {
		t.Fatalf("issued token must parse: %v", err)
	}
	if claims.Subject != "u-res" || claims.Role != "RESEARCHER" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAuthorityPrivilegedRequiresEnrollment(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()

	_, err := authority.Login(context.Background(), Credentials{
		Identifier: "tto@example.org",
		Password:   "tto password!",
	})
	if !errors.Is(err, ErrMFAEnrollmentRequired) {
		t.Fatalf("expected ErrMFAEnrollmentRequired, got %v", err)
	}
}

func TestAuthorityMFAFlow(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()
	ctx := context.Background()

	fixed := time.Now()
	authority.now = func() time.Time { return fixed }

	grant, err := authority.Login(ctx, Credentials{
		Identifier: "admin@example.org",
		Password:   "admin password",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !grant.MFARequired || grant.TempToken == "" {
		t.Fatalf("expected an MFA challenge, got %+v", grant)
	}
	if grant.AccessToken != "" {
		t.Fatal("no tokens may be issued before verification")
	}

	verified, err := authority.VerifyMFA(ctx, MFAVerification{
		Token:          validCode(t, authority),
		TempToken:      grant.TempToken,
		Method:         grant.MFAMethod,
		VerificationID: grant.VerificationID,
	})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if verified.AccessToken == "" || verified.RefreshToken == "" {
		t.Fatalf("expected a full token pair, got %+v", verified)
	}

	// The challenge is consumed.
	_, err = authority.VerifyMFA(ctx, MFAVerification{
		Token:     validCode(t, authority),
		TempToken: grant.TempToken,
	})
	if !errors.Is(err, mfa.ErrChallengeNotFound) {
		t.Fatalf("expected consumed challenge, got %v", err)
	}
}

func TestAuthorityMFARejectsReplayedCode(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()
	ctx := context.Background()

	fixed := time.Now()
	authority.now = func() time.Time { return fixed }

	login := func() *Grant {
		grant, err := authority.Login(ctx, Credentials{
			Identifier: "admin@example.org",
			Password:   "admin password",
		})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		return grant
	}

	code := validCode(t, authority)
	first := login()
	if _, err := authority.VerifyMFA(ctx, MFAVerification{Token: code, TempToken: first.TempToken}); err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}

	second := login()
	_, err := authority.VerifyMFA(ctx, MFAVerification{Token: code, TempToken: second.TempToken})
	if !errors.Is(err, ErrMFAInvalidCode) {
		t.Fatalf("replayed code must be rejected, got %v", err)
	}
}

func TestAuthorityMFAAttemptsAndLockout(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()
	ctx := context.Background()

	grant, err := authority.Login(ctx, Credentials{
		Identifier: "admin@example.org",
		Password:   "admin password",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	wrong := MFAVerification{Token: "111213", TempToken: grant.TempToken}
	for i := 1; i <= 4; i++ {
		_, err := authority.VerifyMFA(ctx, wrong)
		if !errors.Is(err, ErrMFAInvalidCode) {
			t.Fatalf("attempt %d: expected ErrMFAInvalidCode, got %v", i, err)
		}
		var attempt *MFAAttemptError
		if !errors.As(err, &attempt) || attempt.AttemptsRemaining != 5-i {
			t.Fatalf("attempt %d: unexpected bookkeeping %v", i, err)
		}
	}

	_, err = authority.VerifyMFA(ctx, wrong)
	if !errors.Is(err, ErrMFALockedOut) {
		t.Fatalf("fifth failure must lock out, got %v", err)
	}
	var attempt *MFAAttemptError
	if !errors.As(err, &attempt) || attempt.RetryAfter <= 0 {
		t.Fatalf("lockout must carry a retry-after, got %v", err)
	}

	// Even a correct code is rejected while the lock holds.
	fixed := time.Now()
	authority.now = func() time.Time { return fixed }
	_, err = authority.VerifyMFA(ctx, MFAVerification{
		Token:     validCode(t, authority),
		TempToken: grant.TempToken,
	})
	if !errors.Is(err, ErrMFALockedOut) {
		t.Fatalf("locked challenge must reject correct codes, got %v", err)
	}
}

func TestAuthorityRefreshRotation(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()
	ctx := context.Background()

	grant, err := authority.Login(ctx, Credentials{
		Identifier: "researcher@example.org",
		Password:   "plain password",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rotated, err := authority.Refresh(ctx, grant.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == grant.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}
	if rotated.SubjectID != "u-res" || rotated.Role != permission.RoleResearcher {
		t.Fatalf("identity must survive rotation, got %+v", rotated)
	}

	// The consumed token is dead.
	if _, err := authority.Refresh(ctx, grant.RefreshToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("replayed refresh token must be rejected, got %v", err)
	}
	// The rotated one works.
	if _, err := authority.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token must refresh: %v", err)
	}
}

func TestAuthorityLogoutRevokesRefreshToken(t *testing.T) {
	authority, _, done := newAuthorityTest(t)
	defer done()
	ctx := context.Background()

	grant, err := authority.Login(ctx, Credentials{
		Identifier: "researcher@example.org",
		Password:   "plain password",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := authority.Logout(ctx, grant.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := authority.Refresh(ctx, grant.RefreshToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("revoked token must be rejected, got %v", err)
	}

	// Revoking twice is fine.
	if err := authority.Logout(ctx, grant.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
}
