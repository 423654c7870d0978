// Package refresh manages the long-lived opaque refresh tokens exchanged for
// new access tokens.
//
// # Token format
//
// A raw token is base64url(record id + 24-byte secret). The raw value is
// returned to the caller exactly once, at creation or rotation; Redis retains
// only the SHA-256 of the secret.
//
// # Rotation and reuse detection
//
// Rotation replaces the stored secret hash atomically in a Redis Lua script.
// Under concurrent rotation of the same token exactly one caller wins; the
// losers observe a hash mismatch, which is treated as token reuse and burns
// the record entirely.
package refresh
