// Package middleware enforces the server-side authorization chain for
// every guarded endpoint: bearer-token authentication, tiered per-subject
// rate limiting, then role and permission checks, in that order. A request
// only reaches its handler after passing all three.
//
// [Guard.Require] builds a net/http middleware from a [Requirement]
// describing the endpoint's roles, permissions, rate tier, and ownership
// rule. Validated identities are injected into the request context and
// read back with [FromContext].
//
// The package translates HTTP into calls on the jwt, ratelimit, and
// permission packages; it holds no authorization state of its own.
package middleware
