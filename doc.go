// Package authcore is the account-session backend of a betting platform:
// credential verification, JWT access tokens, rotating opaque refresh tokens,
// login attempt limiting, and single-use email verification tokens, all
// backed by Redis.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types. Subsystem coordination — refresh token
// persistence, rate limiting, verification records, audit dispatch — lives
// under internal/ and the value packages (token, secrets, password, refresh,
// policy) and is composed here.
//
// # What this package must NOT do
//
//   - Expose Redis clients, record encodings, or Lua scripts in its public API.
//   - Store plaintext credentials or raw token secrets anywhere.
//   - Leak whether an email is registered through error values or timing.
package authcore
