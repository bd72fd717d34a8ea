// Package session models the client-side auth session and persists it in
// a single-slot key-value store.
//
// One client instance owns exactly one session slot: a new login
// overwrites whatever was there, collapsing concurrent logins to the
// latest writer. Fields are stored under fixed, documented keys (see
// [Store]) so that other collaborators — the UI in particular — can read
// the role and auth status without re-deriving them.
package session
