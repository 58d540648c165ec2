// Package limiters maps request routes to fixed-window policies and
// enforces them with the internal/rate primitive.
//
// # Rule resolution
//
// A [Rules] table holds exact-path rules, wildcard rules ("/sign-in/*")
// and a default. For a path the most specific rule wins: an exact match,
// then the longest matching wildcard prefix, then the default.
//
// A nil [RouteLimiter] allows everything.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package except internal/rate.
//   - Decide what a denial means to the client; callers map the decision.
package limiters
