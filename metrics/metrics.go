// Package metrics counts security-relevant auth events in lock-free
// atomic counters. The [Collector] feeds the registry from the audit
// stream; the export subpackages render snapshots for Prometheus
// scraping or an OpenTelemetry meter.
package metrics

import "sync/atomic"

// ID identifies one counter.
type ID uint8

const (
	// LoginSuccess counts established password logins.
	LoginSuccess ID = iota
	// LoginFailure counts rejected password logins.
	LoginFailure
	// MFAChallengeIssued counts logins that required a second factor.
	MFAChallengeIssued
	// MFAVerifySuccess counts confirmed MFA challenges.
	MFAVerifySuccess
	// MFAVerifyFailure counts rejected MFA codes.
	MFAVerifyFailure
	// MFALockout counts challenges that exhausted their attempt budget.
	MFALockout
	// RefreshSuccess counts rotated token pairs.
	RefreshSuccess
	// RefreshFailure counts refresh exchanges that failed.
	RefreshFailure
	// Logout counts explicit logouts.
	Logout
	// SessionExpired counts sessions ended by expiry.
	SessionExpired
	// AuthFailure counts requests rejected at authentication.
	AuthFailure
	// AuthzDenied counts requests rejected at authorization.
	AuthzDenied
	// RateLimitReject counts requests rejected by a rate budget.
	RateLimitReject
	// RequestPermitted counts requests that passed the full guard chain.
	RequestPermitted

	idCount
)

// Def describes one counter for exporters.
type Def struct {
	ID   ID
	Name string
	Help string
}

// Defs lists every counter in a stable order.
var Defs = []Def{
	{LoginSuccess, "authcore_login_success_total", "Established password logins."},
	{LoginFailure, "authcore_login_failure_total", "Rejected password logins."},
	{MFAChallengeIssued, "authcore_mfa_challenge_issued_total", "Logins that required a second factor."},
	{MFAVerifySuccess, "authcore_mfa_verify_success_total", "Confirmed MFA challenges."},
	{MFAVerifyFailure, "authcore_mfa_verify_failure_total", "Rejected MFA codes."},
	{MFALockout, "authcore_mfa_lockout_total", "Challenges locked out after exhausting attempts."},
	{RefreshSuccess, "authcore_refresh_success_total", "Rotated token pairs."},
	{RefreshFailure, "authcore_refresh_failure_total", "Failed refresh exchanges."},
	{Logout, "authcore_logout_total", "Explicit logouts."},
	{SessionExpired, "authcore_session_expired_total", "Sessions ended by expiry."},
	{AuthFailure, "authcore_auth_failure_total", "Requests rejected at authentication."},
	{AuthzDenied, "authcore_authz_denied_total", "Requests rejected at authorization."},
	{RateLimitReject, "authcore_rate_limit_reject_total", "Requests rejected by a rate budget."},
	{RequestPermitted, "authcore_request_permitted_total", "Requests that passed the guard chain."},
}

// Registry holds the counters. The zero value is unusable; use
// [NewRegistry]. Safe for concurrent use.
type Registry struct {
	counters [idCount]atomic.Uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Inc adds one to the counter. Unknown ids are ignored.
func (r *Registry) Inc(id ID) {
	if r == nil || id >= idCount {
		return
	}
	r.counters[id].Add(1)
}

// Value reads one counter.
func (r *Registry) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return r.counters[id].Load()
}

// Snapshot copies every counter at one point in time.
func (r *Registry) Snapshot() map[ID]uint64 {
	out := make(map[ID]uint64, int(idCount))
	if r == nil {
		return out
	}
	for id := ID(0); id < idCount; id++ {
		out[id] = r.counters[id].Load()
	}
	return out
}
