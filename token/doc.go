// Package token issues and verifies the short-lived, self-contained access
// tokens handed out after authentication.
//
// Tokens are JWTs signed with HS256 or Ed25519. A deprecated unsigned mode is
// accepted for verification only, behind an explicit opt-in, to let callers
// migrate off a legacy token fleet; issuance always signs.
package token
