// Package ratelimit bounds request rates per (identity, tier) key using
// fixed-window Redis counters. Each key has its own counter, so contention
// scales with the number of distinct clients; there is no global lock.
//
// Two tiers are built in: the general tier for ordinary endpoints and the
// sensitive tier for destructive or security-relevant operations.
package ratelimit
