// Package rate implements the Redis-backed failed-login attempt limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on the first hit of a
// window. Key prefixes:
//   - la:  — login attempts per identity (email)
//   - lai: — login attempts per source IP
//
// An identity is blocked once its counter reaches the configured threshold
// and stays blocked until the window key expires.
package rate
