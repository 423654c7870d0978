// Package password hashes and verifies account passwords with argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// so they interoperate with other argon2 implementations. [Hasher.NeedsRehash]
// reports when a stored hash was produced with weaker parameters than the
// current configuration, letting the engine re-hash on the next successful
// login.
//
// This package owns hashing and verification only; password policy lives in
// package policy. Plaintext passwords are never stored or logged.
package password
