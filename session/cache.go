package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned by Cache.Get when no entry exists.
	ErrCacheMiss = errors.New("session cache miss")
	// ErrRedisUnavailable wraps transport failures of the cache tier.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// deleteSessionLua removes a cached session and its user-index membership.
// KEYS[1] = session key, KEYS[2] = user index key, ARGV[1] = token digest
var deleteSessionLua = redis.NewScript(`
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`)

// saveSessionLua writes a session and extends the user index so it lives
// at least as long as its longest-lived member.
// KEYS[1] = session key, KEYS[2] = user index key
// ARGV[1] = encoded session, ARGV[2] = ttl ms, ARGV[3] = token digest
var saveSessionLua = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`)

// Cache is the Redis tier of session storage.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCache creates a cache under prefix ("sess" when empty).
func NewCache(redisClient redis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = "sess"
	}
	return &Cache{
		redis:  redisClient,
		prefix: prefix,
	}
}

// TokenDigest is the cache-side identifier of a token.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (c *Cache) key(digest string) string {
	return c.prefix + ":" + digest
}

func (c *Cache) userKey(userID string) string {
	return c.prefix + ":u:" + userID
}

// Set stores s under its token for ttl and indexes it by user.
func (c *Cache) Set(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := Encode(s)
	if err != nil {
		return err
	}

	digest := TokenDigest(s.Token)
	keys := []string{c.key(digest), c.userKey(s.UserID)}
	if err := saveSessionLua.Run(ctx, c.redis, keys, data, ttl.Milliseconds(), digest).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the cached session for token or ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, token string) (*Session, error) {
	data, err := c.redis.Get(ctx, c.key(TokenDigest(token))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	s, err := Decode(data)
	if err != nil {
		// A corrupt entry is as good as absent; the durable tier rebuilds it.
		_ = c.redis.Del(ctx, c.key(TokenDigest(token))).Err()
		return nil, ErrCacheMiss
	}
	s.Token = token
	return s, nil
}

// Delete removes the cached copy of token. Missing entries are fine.
func (c *Cache) Delete(ctx context.Context, token, userID string) error {
	digest := TokenDigest(token)
	if err := deleteSessionLua.Run(ctx, c.redis, []string{c.key(digest), c.userKey(userID)}, digest).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteUser removes every cached session indexed under userID.
//
// A session cached between the SMEMBERS read and the delete survives
// until its TTL lapses; the durable delete that accompanies this call
// keeps it from being re-read after that.
func (c *Cache) DeleteUser(ctx context.Context, userID string) error {
	userKey := c.userKey(userID)

	digests, err := c.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(digests)+1)
	for _, d := range digests {
		keys = append(keys, c.key(d))
	}
	keys = append(keys, userKey)

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks connectivity to the cache.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
