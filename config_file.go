package authcore

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/techbridge/authcore/jwt"
	"github.com/techbridge/authcore/mfa"
	"github.com/techbridge/authcore/ratelimit"
)

// FileConfig is the YAML shape consumed by the server binary.
// ${VAR} references in the file are expanded from the environment, so
// secrets stay out of the checked-in config.
type FileConfig struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	JWT struct {
		AccessTTL     time.Duration `yaml:"access_ttl"`
		SigningMethod string        `yaml:"signing_method"`
		Secret        string        `yaml:"secret"`
		Issuer        string        `yaml:"issuer"`
		Audience      string        `yaml:"audience"`
		Leeway        time.Duration `yaml:"leeway"`
	} `yaml:"jwt"`

	RateLimit struct {
		General struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"general"`
		Sensitive struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"sensitive"`
	} `yaml:"rate_limit"`

	MFA struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		Lockout      time.Duration `yaml:"lockout"`
		ChallengeTTL time.Duration `yaml:"challenge_ttl"`
	} `yaml:"mfa"`

	Refresh struct {
		Interval     time.Duration `yaml:"interval"`
		RotationLead time.Duration `yaml:"rotation_lead"`
	} `yaml:"refresh"`
}

// LoadFileConfig reads the YAML config at path. A .env file next to the
// working directory is loaded first if present; ${VAR} placeholders in
// the YAML are then expanded from the environment.
func LoadFileConfig(path string) (*FileConfig, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))
	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates. LoadFileConfig calls it;
// callers assembling a FileConfig in code should too.
func (c *FileConfig) Normalize() error {
	c.applyDefaults()
	return c.validate()
}

func (c *FileConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.SigningMethod == "" {
		c.JWT.SigningMethod = string(jwt.MethodHS256)
	}
}

func (c *FileConfig) validate() error {
	if c.JWT.SigningMethod == string(jwt.MethodHS256) && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required for hs256")
	}
	return nil
}

// JWTConfig maps the file shape onto the token manager's config.
func (c *FileConfig) JWTConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:     c.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(c.JWT.SigningMethod),
		PrivateKey:    []byte(c.JWT.Secret),
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
	}
}

// RateLimitConfig maps the file shape onto the limiter's config.
func (c *FileConfig) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		General: ratelimit.TierConfig{
			Limit:  c.RateLimit.General.Limit,
			Window: c.RateLimit.General.Window,
		},
		Sensitive: ratelimit.TierConfig{
			Limit:  c.RateLimit.Sensitive.Limit,
			Window: c.RateLimit.Sensitive.Window,
		},
	}
}

// SchedulerConfig maps the file shape onto the refresh scheduler's
// config, for clients that drive a [Controller] from the same file.
func (c *FileConfig) SchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     c.Refresh.Interval,
		RotationLead: c.Refresh.RotationLead,
	}
}

// MFAConfig maps the file shape onto the challenge verifier's config.
func (c *FileConfig) MFAConfig() mfa.Config {
	return mfa.Config{
		MaxAttempts:  c.MFA.MaxAttempts,
		Lockout:      c.MFA.Lockout,
		ChallengeTTL: c.MFA.ChallengeTTL,
	}
}
