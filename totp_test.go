package authcore

import (
	"strings"
	"testing"
	"time"
)

// Reference vectors from RFC 6238 appendix B (8 digits, 30 second
// period, secret "12345678901234567890").
func TestTOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	verifier := newTOTPVerifier(TOTPConfig{Digits: 8, Skew: 0})

	vectors := []struct {
		unix int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}
	for _, v := range vectors {
		ok, _, err := verifier.verify(secret, v.code, time.Unix(v.unix, 0))
		if err != nil {
			t.Fatalf("t=%d: verify failed: %v", v.unix, err)
		}
		if !ok {
			t.Fatalf("t=%d: expected %s to verify", v.unix, v.code)
		}
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	secret := []byte("12345678901234567890")
	verifier := newTOTPVerifier(TOTPConfig{Skew: 1})
	now := time.Unix(1111111111, 0)

	previous, err := hotpCode(secret, now.Unix()/30-1, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	ok, counter, err := verifier.verify(secret, previous, now)
	if err != nil || !ok {
		t.Fatalf("one step of skew must be accepted: ok=%v err=%v", ok, err)
	}
	if counter != now.Unix()/30-1 {
		t.Fatalf("expected matched counter %d, got %d", now.Unix()/30-1, counter)
	}

	stale, err := hotpCode(secret, now.Unix()/30-2, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	if ok, _, _ := verifier.verify(secret, stale, now); ok {
		t.Fatal("two steps of skew must be rejected")
	}
}

func TestTOTPRejectsMalformedCodes(t *testing.T) {
	secret := []byte("12345678901234567890")
	verifier := newTOTPVerifier(TOTPConfig{})
	now := time.Unix(1111111111, 0)

	for _, code := range []string{"", "12345", "1234567", "12345a", "abc def"} {
		if ok, _, err := verifier.verify(secret, code, now); ok || err != nil {
			t.Fatalf("code %q: expected silent rejection, got ok=%v err=%v", code, ok, err)
		}
	}

	if _, _, err := verifier.verify(nil, "123456", now); err == nil {
		t.Fatal("empty secret must error")
	}
}

func TestTOTPProvisioning(t *testing.T) {
	verifier := newTOTPVerifier(TOTPConfig{Issuer: "TechBridge"})

	raw, encoded, err := verifier.generateSecret()
	if err != nil {
		t.Fatalf("generateSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("expected %d secret bytes, got %d", totpSecretBytes, len(raw))
	}
	if strings.Contains(encoded, "=") {
		t.Fatalf("base32 form must be unpadded: %q", encoded)
	}

	uri := verifier.provisionURI(encoded, "nadia@example.org")
	if !strings.HasPrefix(uri, "otpauth://totp/TechBridge:") {
		t.Fatalf("unexpected uri prefix: %q", uri)
	}
	for _, want := range []string{"secret=" + encoded, "issuer=TechBridge", "period=30", "digits=6", "algorithm=SHA1"} {
		if !strings.Contains(uri, want) {
			t.Fatalf("uri missing %q: %q", want, uri)
		}
	}
}

func TestTOTPUnsupportedAlgorithm(t *testing.T) {
	verifier := newTOTPVerifier(TOTPConfig{Algorithm: "MD5"})
	if _, _, err := verifier.verify([]byte("12345678901234567890"), "123456", time.Unix(59, 0)); err == nil {
		t.Fatal("unsupported algorithm must error")
	}
}
