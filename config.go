package authcore

import (
	"errors"
	"time"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultRotationLead    = 2 * time.Minute
	defaultExchangeTimeout = 10 * time.Second
)

// ControllerConfig tunes the session controller. Zero-value fields fall
// back to the defaults below.
type ControllerConfig struct {
	// ExchangeTimeout bounds each authority round trip (login, MFA,
	// refresh, logout).
	ExchangeTimeout time.Duration
}

func (c *ControllerConfig) applyDefaults() {
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = defaultExchangeTimeout
	}
}

// SchedulerConfig tunes the background refresh loop.
type SchedulerConfig struct {
	// Interval between TTL checks. Should be comfortably shorter than
	// RotationLead so a failed attempt leaves room for the next tick.
	Interval time.Duration
	// RotationLead is how long before expiry the token pair is rotated.
	// A tick that finds more remaining lifetime than this does nothing.
	RotationLead time.Duration
}

func (c *SchedulerConfig) applyDefaults() error {
	if c.Interval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	if c.RotationLead < 0 {
		return errors.New("rotation lead must not be negative")
	}
	if c.Interval == 0 {
		c.Interval = defaultRefreshInterval
	}
	if c.RotationLead == 0 {
		c.RotationLead = defaultRotationLead
	}
	return nil
}
