package stores

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/otp"
	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersionV1 = 1
	otpRecordSize      = 1 + 2 + 8 + 8 + 32

	// otpExpiredGrace keeps a lapsed record around briefly so a late
	// verification reports expiry rather than absence.
	otpExpiredGrace = time.Minute
)

// consumeOTPLua atomically performs GET -> validate -> DEL/SET on a challenge.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// The script compares SHA-256 digests of codes; plaintext codes never
// reach Redis.
// ARGV[2] = max attempts (0 disables the cap)
// ARGV[3] = current unix time in milliseconds
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "mismatch"
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

-- version(1) attempts(2) issuedAt(8) expiresAt(8) codeHash(32)
if string.byte(data, 1) ~= 1 or string.len(data) ~= 51 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 12, 19 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowMs >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 20, 51)
if storedHash ~= providedHash then
  attempts = attempts + 1
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// OTPStore keeps OTP challenges in Redis, one key per (purpose, address).
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ otp.Store = (*OTPStore)(nil)

// NewOTPStore creates a Redis challenge store.
func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(address string, purpose otp.Purpose) string {
	return s.prefix + ":" + string(purpose) + ":" + address
}

// Save writes c with SET, replacing any earlier challenge for the pair.
func (s *OTPStore) Save(ctx context.Context, c *otp.Challenge) error {
	ttl := c.ExpiresAt.Sub(c.IssuedAt)
	if ttl <= 0 {
		return errors.New("otp record already expired")
	}

	if err := s.redis.Set(ctx, s.key(c.Address, c.Purpose), encodeOTPRecord(c), ttl+otpExpiredGrace).Err(); err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

// Consume runs the verification script; see [otp.Store].
func (s *OTPStore) Consume(
	ctx context.Context,
	address string,
	purpose otp.Purpose,
	codeHash [32]byte,
	maxAttempts int,
	now time.Time,
) error {
	result, err := consumeOTPLua.Run(ctx, s.redis,
		[]string{s.key(address, purpose)},
		string(codeHash[:]),
		maxAttempts,
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return otp.ErrNotFound
		case "expired":
			return otp.ErrExpired
		case "attempts_exceeded":
			return otp.ErrAttemptsExceeded
		case "mismatch":
			return otp.ErrMismatch
		default:
			return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return fmt.Errorf("%w: unexpected lua result type", otp.ErrStoreUnavailable)
	}

	if _, err := decodeOTPRecord([]byte(data)); err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the active challenge for the pair. Missing keys are fine.
func (s *OTPStore) Delete(ctx context.Context, address string, purpose otp.Purpose) error {
	if err := s.redis.Del(ctx, s.key(address, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

func encodeOTPRecord(c *otp.Challenge) []byte {
	buf := make([]byte, otpRecordSize)
	buf[0] = otpRecordVersionV1

	attempts := c.Attempts
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 0xFFFF {
		attempts = 0xFFFF
	}
	binary.BigEndian.PutUint16(buf[1:3], uint16(attempts))
	binary.BigEndian.PutUint64(buf[3:11], uint64(c.IssuedAt.UnixMilli()))
	binary.BigEndian.PutUint64(buf[11:19], uint64(c.ExpiresAt.UnixMilli()))
	copy(buf[19:], c.CodeHash[:])
	return buf
}

func decodeOTPRecord(data []byte) (*otp.Challenge, error) {
	if len(data) != otpRecordSize {
		return nil, errors.New("invalid otp record size")
	}
	if data[0] != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	c := &otp.Challenge{
		Attempts:  int(binary.BigEndian.Uint16(data[1:3])),
		IssuedAt:  time.UnixMilli(int64(binary.BigEndian.Uint64(data[3:11]))),
		ExpiresAt: time.UnixMilli(int64(binary.BigEndian.Uint64(data[11:19]))),
	}
	copy(c.CodeHash[:], data[19:])
	return c, nil
}
