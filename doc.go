// Package authgate is a credential and session authentication engine:
// email/password and email one-time-code sign-in, opaque session tokens
// kept in a durable store with a Redis cache in front, and per-route
// fixed-window rate limiting.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface: [Engine], [Builder], [Config], the
// [CredentialStore] contract and value types. Session tiers, OTP
// challenges, limiter scripts and the delivery queue live in sub-packages
// and under internal/.
//
// # What this package must NOT do
//
//   - Return internal error text that the HTTP layer would echo; only
//     validation messages are client-safe (see [ClientMessage]).
//   - Block a request on code delivery; sends run on background workers.
//   - Import any sub-package that re-imports authgate (no import cycles).
//
// # Storage contract
//
// Every operation counts one rate-limit hit before touching anything
// else. Session reads hit Redis first and fall through to the durable
// store, which stays the system of record.
package authgate
