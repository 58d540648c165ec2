// Package session owns opaque session tokens and their two storage tiers.
//
// # Tiers
//
// The durable store is the system of record. The Redis [Cache] holds a
// binary copy of each session for at most the cookie-cache window (300s
// by default) or the session's remaining lifetime, whichever is shorter.
// [Manager.Get] reads the cache first and falls back to the durable store
// on a miss, repopulating the cache on the way out. A cache entry can be
// stale for at most its TTL after a revocation that reached only the
// durable tier.
//
// # Binary encoding
//
// Cached sessions use a compact, versioned binary format. The encoder is
// append-only: new versions add fields but never reinterpret old ones.
//
// # What this package must NOT do
//
//   - Import authgate (no upward imports).
//   - Write the plaintext token to the cache.
//   - Return a session whose expiry has passed.
package session
