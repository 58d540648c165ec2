// Package password implements salted, adaptive password hashing.
//
// # Output format
//
// bcrypt digests use the modular crypt format ($2a$10$...). argon2id
// digests use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher] writes with one algorithm and verifies both, and
// [Hasher.NeedsUpgrade] flags digests produced by the other algorithm or
// weaker parameters so the caller can re-hash after the next successful
// sign-in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Length policy is
// enforced by the caller before Hash is reached.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authgate package.
//   - Log plaintext passwords.
package password
