package authcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/techbridge/authcore/jwt"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authcore.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "super-secret-value")

	path := writeConfig(t, `
server:
  addr: ":9000"
redis:
  addr: "localhost:6379"
jwt:
  access_ttl: 10m
  secret: "${AUTHCORE_JWT_SECRET}"
  issuer: "techbridge"
rate_limit:
  general:
    limit: 50
    window: 5m
mfa:
  max_attempts: 3
refresh:
  interval: 2m
`)

	cfg, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.JWT.Secret != "super-secret-value" {
		t.Fatalf("env expansion failed: %q", cfg.JWT.Secret)
	}
	if cfg.JWT.AccessTTL != 10*time.Minute {
		t.Fatalf("unexpected access ttl %v", cfg.JWT.AccessTTL)
	}

	jc := cfg.JWTConfig()
	if jc.SigningMethod != jwt.MethodHS256 || string(jc.PrivateKey) != "super-secret-value" {
		t.Fatalf("unexpected jwt config %+v", jc)
	}

	rl := cfg.RateLimitConfig()
	if rl.General.Limit != 50 || rl.General.Window != 5*time.Minute {
		t.Fatalf("unexpected rate limit config %+v", rl)
	}
	// Unset tiers stay zero here; the limiter applies its own defaults.
	if rl.Sensitive.Limit != 0 {
		t.Fatalf("unexpected sensitive limit %d", rl.Sensitive.Limit)
	}

	if cfg.MFAConfig().MaxAttempts != 3 {
		t.Fatalf("unexpected mfa config %+v", cfg.MFAConfig())
	}
	if cfg.Refresh.Interval != 2*time.Minute {
		t.Fatalf("unexpected refresh interval %v", cfg.Refresh.Interval)
	}
}

func TestLoadFileConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: "some-secret"
`)
	cfg, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("expected default access ttl, got %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.SigningMethod != string(jwt.MethodHS256) {
		t.Fatalf("expected default signing method, got %q", cfg.JWT.SigningMethod)
	}
}

func TestLoadFileConfigRejectsMissingSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":8080\"\n")
	if _, err := LoadFileConfig(path); err == nil {
		t.Fatal("hs256 without a secret must be rejected")
	}
}

func TestLoadFileConfigMissingFile(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must be reported")
	}
}
