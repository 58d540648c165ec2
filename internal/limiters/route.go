package limiters

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/internal/rate"
)

var ErrRouteRateLimited = errors.New("route rate limited")

// Rule is one fixed-window budget.
type Rule struct {
	Window time.Duration
	Max    int
}

// Rules resolves a route path to its Rule.
type Rules struct {
	Default Rule
	// Custom keys are exact paths or prefixes ending in "/*".
	Custom map[string]Rule
}

// DefaultRules returns the built-in policy: 100 hits per 10s everywhere,
// 3 per 10s on sign-in and sign-up, 3 per minute on email-otp routes and
// a single OTP send per minute.
func DefaultRules() Rules {
	return Rules{
		Default: Rule{Window: 10 * time.Second, Max: 100},
		Custom: map[string]Rule{
			"/sign-in/*":                       {Window: 10 * time.Second, Max: 3},
			"/sign-up/*":                       {Window: 10 * time.Second, Max: 3},
			"/email-otp/*":                     {Window: time.Minute, Max: 3},
			"/forget-password/*":               {Window: time.Minute, Max: 3},
			"/email-otp/send-verification-otp": {Window: time.Minute, Max: 1},
		},
	}
}

// For returns the rule that applies to path.
func (r Rules) For(path string) Rule {
	if rule, ok := r.Custom[path]; ok {
		return rule
	}

	best, bestLen := r.Default, -1
	for pattern, rule := range r.Custom {
		prefix, ok := strings.CutSuffix(pattern, "*")
		if !ok || !strings.HasPrefix(path, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = rule, len(prefix)
		}
	}
	return best
}

// Patterns lists configured custom rule keys in a stable order.
func (r Rules) Patterns() []string {
	out := make([]string, 0, len(r.Custom))
	for p := range r.Custom {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Validate rejects non-positive windows or budgets.
func (r Rules) Validate() error {
	if r.Default.Window <= 0 || r.Default.Max <= 0 {
		return errors.New("default rate limit rule must have positive window and max")
	}
	for _, p := range r.Patterns() {
		rule := r.Custom[p]
		if rule.Window <= 0 || rule.Max <= 0 {
			return errors.New("rate limit rule " + p + " must have positive window and max")
		}
		if !strings.HasPrefix(p, "/") {
			return errors.New("rate limit rule " + p + " must start with /")
		}
	}
	return nil
}

// RouteLimiter applies Rules per client identity.
type RouteLimiter struct {
	limiter *rate.Limiter
	rules   Rules
}

// NewRouteLimiter builds a limiter from a rate primitive and its rules.
func NewRouteLimiter(limiter *rate.Limiter, rules Rules) *RouteLimiter {
	return &RouteLimiter{limiter: limiter, rules: rules}
}

// Check counts one hit for (path, identity). A denied decision comes back
// together with ErrRouteRateLimited; limiter failures wrap
// rate.ErrRedisUnavailable.
func (l *RouteLimiter) Check(ctx context.Context, path, identity string) (rate.Decision, error) {
	if l == nil || l.limiter == nil {
		return rate.Decision{Allowed: true}, nil
	}
	if identity == "" {
		identity = "unknown"
	}

	rule := l.rules.For(path)
	d, err := l.limiter.CheckAndIncrement(ctx, path, identity, rule.Window, rule.Max)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, ErrRouteRateLimited
	}
	return d, nil
}
