// Package otp issues and verifies short numeric one-time codes bound to an
// address and a purpose.
//
// # Lifecycle
//
// At most one challenge is active per (purpose, address). Issuing a new
// code replaces the previous one. A challenge is consumed by the first
// successful verification, expires five minutes after issuance by default
// and is destroyed after MaxAttempts wrong codes.
//
// Codes are generated with crypto/rand, stored as SHA-256 digests and
// handed to a [Deliverer] that sends them asynchronously.
//
// # Architecture boundaries
//
// Persistence is behind [Store]; Redis and SQL implementations live in
// internal/stores and store/postgres. Whether an address may receive a
// code at all (unknown user, rate limits) is decided by the caller.
package otp
