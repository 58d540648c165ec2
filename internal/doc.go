// Package internal contains helper utilities that are intentionally private to authgate,
// including secure random generation for session tokens and one-time codes.
//
// # Sub-packages
//
//   - config: process configuration from the environment
//   - httpapi: HTTP surface for the engine
//   - limiters: route rule table on top of rate
//   - logger: slog construction
//   - mailer: SMTP delivery of one-time codes
//   - notify: async delivery dispatcher
//   - rate: core Redis-backed fixed-window primitive
//   - stores: Redis OTP challenge store
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
