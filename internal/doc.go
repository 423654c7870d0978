// Package internal groups the subsystems that are intentionally private to
// authcore.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - rate — Redis-backed fixed-window login attempt counters
//   - stores — single-use email-verification record store
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
