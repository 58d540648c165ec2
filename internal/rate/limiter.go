package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces counter keys.
const DefaultPrefix = "rl"

// incrWindowScript increments the counter and arms the window on first
// hit. A key left without TTL (for example by a crash between calls in an
// older deployment) is re-armed so it can never pin a client forever.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Decision is the outcome of one CheckAndIncrement call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter counts hits per (route, identity) in fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// CheckAndIncrement records one hit and reports whether the caller is
// still within max hits for the current window. Denied hits are counted
// too; the window end stays fixed by the first hit.
func (l *Limiter) CheckAndIncrement(ctx context.Context, routeKey, identityKey string, window time.Duration, max int) (Decision, error) {
	if window <= 0 || max <= 0 {
		return Decision{}, fmt.Errorf("rate: invalid window %s or max %d", window, max)
	}

	res, err := incrWindowScript.Run(ctx, l.redis, []string{l.key(routeKey, identityKey)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	d := Decision{
		Allowed: res[0] <= int64(max),
		Count:   res[0],
		Limit:   max,
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[1]) * time.Millisecond
	}
	return d, nil
}

func (l *Limiter) key(routeKey, identityKey string) string {
	return l.prefix + ":" + routeKey + ":" + identityKey
}
