// Package rate provides the Redis-backed fixed-window counter that every
// request-level throttle is built on.
//
// # Window semantics
//
// A window starts on the first hit for a key: the counter is created with
// a TTL equal to the window and every later hit increments it until the
// key expires. INCR and the first-hit PEXPIRE run in one Lua script, so a
// counter never exists without a TTL.
//
// Keys have the form <prefix>:<route>:<identity>.
//
// # What this package must NOT do
//
//   - Decide which routes are limited or how tightly (see internal/limiters).
//   - Be imported outside the authgate module.
package rate
