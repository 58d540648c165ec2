// Package stores provides Redis-backed, short-lived record stores for
// authentication challenges.
//
// # Design
//
// Each record is a versioned, fixed-size binary value stored with a TTL.
// Consumption runs as a single Lua script: the record is read, checked
// for expiry and code digest, and then deleted or rewritten with an
// incremented attempt counter, all atomically. A final constant-time
// compare runs in Go on the returned record.
//
// # What this package must NOT do
//
//   - Generate codes, enforce rate limits or decide who may receive a code.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
