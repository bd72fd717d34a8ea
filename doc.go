// Package authcore is the authentication, session, and authorization core
// for the TechBridge platform.
//
// The client side is a session state machine ([Controller]) that drives
// credential login, an optional MFA challenge, single-flight token
// refresh, and logout, persisting its state in a single-slot store. The
// server side is an HTTP middleware (package middleware) that
// authenticates self-describing access tokens, applies tiered rate limits,
// and gates endpoints on roles and permissions.
//
// Subpackages hold the moving parts: jwt (tokens), mfa (challenge
// verification and lockout), ratelimit (fixed-window budgets), permission
// (roles and grants), session (the client slot store), password (Argon2id
// hashing), and audit (security-event sinks).
package authcore
