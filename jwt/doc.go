// Package jwt issues and verifies the self-describing access tokens used
// by the authorization middleware. A token carries the subject, role, and
// session ID; verification needs no server-side session lookup.
//
// HS256 (shared secret) and Ed25519 (asymmetric) signing are supported.
package jwt
