package authgate

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Session   SessionConfig
	Password  PasswordConfig
	OTP       OTPConfig
	Delivery  DeliveryConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig

	// RevokeSessionsOnPasswordReset signs the user out everywhere after
	// a successful OTP password reset.
	RevokeSessionsOnPasswordReset bool
}

// SessionConfig controls session lifetime and the cache tier.
type SessionConfig struct {
	ExpiresIn   time.Duration
	UpdateAge   time.Duration
	CacheTTL    time.Duration
	RedisPrefix string
}

// LengthPolicy bounds a password length in characters, inclusive.
type LengthPolicy struct {
	MinLength int
	MaxLength int
}

func (p LengthPolicy) allows(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= p.MinLength && n <= p.MaxLength
}

// PasswordConfig selects the hash algorithm and the length policies.
type PasswordConfig struct {
	Algorithm  password.Algorithm
	BcryptCost int
	Argon2     password.Argon2Config

	// SignUp applies to sign-up and OTP password reset.
	SignUp LengthPolicy
	// Set applies to init-password.
	Set LengthPolicy
}

// OTPBackend selects where challenges are stored.
type OTPBackend string

const (
	OTPBackendRedis    OTPBackend = "redis"
	OTPBackendDatabase OTPBackend = "database"
)

// OTPConfig controls one-time code issuance.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	Backend     OTPBackend
	RedisPrefix string

	// DisableSignUp stops OTP sign-in from creating unknown users.
	DisableSignUp bool
	// AutoSignInAfterVerification issues a session on verify-email.
	AutoSignInAfterVerification bool
}

// DeliveryConfig sizes the background queue in front of the
// NotificationSender.
type DeliveryConfig struct {
	BufferSize  int
	Workers     int
	DropIfFull  bool
	SendTimeout time.Duration
}

// RateLimitRule allows Max hits per Window.
type RateLimitRule struct {
	Window time.Duration
	Max    int
}

// RateLimitConfig holds the per-route rule table. Custom keys are exact
// paths or prefixes ending in "/*", relative to the auth base path.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	Default     RateLimitRule
	Custom      map[string]RateLimitRule
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults: 7 day sessions refreshed
// daily and cached for 300s, bcrypt cost 10, 6 digit codes valid for five
// minutes, and the built-in rate-limit table.
func DefaultConfig() Config {
	sess := session.DefaultConfig()
	rules := limiters.DefaultRules()

	custom := make(map[string]RateLimitRule, len(rules.Custom))
	for path, r := range rules.Custom {
		custom[path] = RateLimitRule{Window: r.Window, Max: r.Max}
	}

	return Config{
		Session: SessionConfig{
			ExpiresIn:   sess.ExpiresIn,
			UpdateAge:   sess.UpdateAge,
			CacheTTL:    sess.CacheTTL,
			RedisPrefix: "sess",
		},
		Password: PasswordConfig{
			Algorithm:  password.AlgorithmBcrypt,
			BcryptCost: password.DefaultBcryptCost,
			Argon2:     password.DefaultArgon2Config(),
			SignUp:     LengthPolicy{MinLength: 8, MaxLength: password.MaxBcryptBytes},
			Set:        LengthPolicy{MinLength: 8, MaxLength: 20},
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
			Backend:     OTPBackendRedis,
			RedisPrefix: "otp",
		},
		Delivery: DeliveryConfig{
			BufferSize:  256,
			Workers:     2,
			DropIfFull:  true,
			SendTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: "rl",
			Default:     RateLimitRule{Window: rules.Default.Window, Max: rules.Default.Max},
			Custom:      custom,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.Custom = maps.Clone(cfg.RateLimit.Custom)
	return out
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Session
	if c.Session.ExpiresIn <= 0 {
		return errors.New("Session ExpiresIn must be > 0")
	}
	if c.Session.UpdateAge < 0 || c.Session.UpdateAge >= c.Session.ExpiresIn {
		return errors.New("Session UpdateAge must be in [0, ExpiresIn)")
	}
	if c.Session.CacheTTL < 0 {
		return errors.New("Session CacheTTL must be >= 0")
	}

	// Password
	switch c.Password.Algorithm {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return fmt.Errorf("Password Algorithm %q is unsupported", c.Password.Algorithm)
	}
	for name, p := range map[string]LengthPolicy{"SignUp": c.Password.SignUp, "Set": c.Password.Set} {
		if p.MinLength < 1 || p.MaxLength < p.MinLength {
			return fmt.Errorf("Password %s policy must satisfy 1 <= MinLength <= MaxLength", name)
		}
		if c.Password.Algorithm == password.AlgorithmBcrypt && p.MaxLength > password.MaxBcryptBytes {
			return fmt.Errorf("Password %s MaxLength must be <= %d with bcrypt", name, password.MaxBcryptBytes)
		}
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be in [4, 10]")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts < 0 {
		return errors.New("OTP MaxAttempts must be >= 0")
	}
	if c.OTP.Backend != OTPBackendRedis && c.OTP.Backend != OTPBackendDatabase {
		return fmt.Errorf("OTP Backend %q is unsupported", c.OTP.Backend)
	}

	// Delivery
	if c.Delivery.BufferSize <= 0 || c.Delivery.Workers <= 0 {
		return errors.New("Delivery BufferSize and Workers must be > 0")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if err := c.routeRules().Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) routeRules() limiters.Rules {
	rules := limiters.Rules{
		Default: limiters.Rule{Window: c.RateLimit.Default.Window, Max: c.RateLimit.Default.Max},
		Custom:  make(map[string]limiters.Rule, len(c.RateLimit.Custom)),
	}
	for path, r := range c.RateLimit.Custom {
		rules.Custom[strings.TrimSpace(path)] = limiters.Rule{Window: r.Window, Max: r.Max}
	}
	return rules
}

func (c *Config) sessionConfig() session.Config {
	return session.Config{
		ExpiresIn: c.Session.ExpiresIn,
		UpdateAge: c.Session.UpdateAge,
		CacheTTL:  c.Session.CacheTTL,
	}
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Algorithm:  c.Password.Algorithm,
		BcryptCost: c.Password.BcryptCost,
		Argon2:     c.Password.Argon2,
	}
}
