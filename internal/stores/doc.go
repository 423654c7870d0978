// Package stores provides the Redis-backed, short-lived record store for
// email verification challenges.
//
// # Design
//
// Each record is a versioned, fixed-offset binary blob persisted with a TTL.
// Consume runs a Lua script so lookup, expiry check, and deletion are one
// atomic step: a record is consumed at most once, and an expired record is
// deleted and reported as expired even if the TTL sweep has not collected it
// yet. Secret comparisons are constant-time.
//
// The package owns persistence only. Token generation and policy live in the
// engine.
package stores
