package metrics

import (
	"context"

	"github.com/techbridge/authcore/audit"
)

// Collector is an [audit.Sink] that folds the audit stream into registry
// counters, so deployments get metrics for free wherever they already
// emit audit events. Compose it with other sinks via [audit.MultiSink].
type Collector struct {
	registry *Registry
}

// NewCollector creates a Collector feeding registry.
func NewCollector(registry *Registry) *Collector {
	return &Collector{registry: registry}
}

// Registry exposes the underlying registry for exporters.
func (c *Collector) Registry() *Registry {
	return c.registry
}

// Emit implements [audit.Sink].
func (c *Collector) Emit(_ context.Context, event audit.Event) {
	if c == nil || c.registry == nil {
		return
	}
	if id, ok := metricFor(event); ok {
		c.registry.Inc(id)
	}
}

func metricFor(event audit.Event) (ID, bool) {
	switch event.EventType {
	case audit.EventLogin:
		if event.Success {
			return LoginSuccess, true
		}
		return LoginFailure, true
	case audit.EventMFAChallenge:
		return MFAChallengeIssued, true
	case audit.EventMFAVerify:
		if event.Success {
			return MFAVerifySuccess, true
		}
		return MFAVerifyFailure, true
	case audit.EventMFALockout:
		return MFALockout, true
	case audit.EventRefresh:
		if event.Success {
			return RefreshSuccess, true
		}
		return RefreshFailure, true
	case audit.EventLogout:
		return Logout, true
	case audit.EventSessionExpired:
		return SessionExpired, true
	case audit.EventAuthFailure:
		return AuthFailure, true
	case audit.EventAuthzDenied:
		return AuthzDenied, true
	case audit.EventRateLimitReject:
		return RateLimitReject, true
	case audit.EventRequestPermitted:
		return RequestPermitted, true
	default:
		return 0, false
	}
}
