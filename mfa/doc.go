// Package mfa verifies one-time codes for pending login challenges and
// enforces attempt limits with a cool-down lockout.
//
// Attempt state is keyed by the challenge's temp token, independent of any
// session. The package does not validate codes itself: the caller supplies
// the exchange with the verification authority, and the Verifier wraps it
// with format checking, attempt counting, and lockout. Authority outages
// are transient failures and never consume an attempt.
package mfa
