package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/notify"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
	"github.com/redis/go-redis/v9"
)

// Route keys, relative to the auth base path. Each operation counts
// against the rate-limit rule of its route.
const (
	RouteSignUpEmail         = "/sign-up/email"
	RouteSignInEmail         = "/sign-in/email"
	RouteSignOut             = "/sign-out"
	RouteSignOutAll          = "/revoke-sessions"
	RouteGetSession          = "/get-session"
	RouteInitPassword        = "/init-password"
	RouteSendVerificationOTP = "/email-otp/send-verification-otp"
	RouteVerifyEmail         = "/email-otp/verify-email"
	RouteSignInEmailOTP      = "/sign-in/email-otp"
	RouteForgetPassword      = "/forget-password/email-otp"
	RouteResetPassword       = "/email-otp/reset-password"
)

// Engine runs every authentication operation. Build one with New().
type Engine struct {
	config     Config
	store      CredentialStore
	hasher     *password.Hasher
	dummyHash  string
	sessions   *session.Manager
	otp        *otp.Engine
	dispatcher *notify.Dispatcher
	limiter    *limiters.RouteLimiter
	strategies strategyTable
	redis      redis.UniversalClient
	metrics    *Metrics
	logger     *slog.Logger
}

// Close drains the delivery queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Ping checks both storage tiers.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	var errs []error
	if err := e.store.Ping(ctx); err != nil {
		errs = append(errs, storageError("ping store", err))
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		errs = append(errs, storageError("ping redis", err))
	}
	return errors.Join(errs...)
}

// DeliveryDropped counts codes that never reached the sender.
func (e *Engine) DeliveryDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CheckRateLimit counts one hit on route for the client in ctx, for
// callers that answer a route without reaching the engine operation.
func (e *Engine) CheckRateLimit(ctx context.Context, route string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.limit(ctx, route)
}

// limit counts one hit on route for the client in ctx.
func (e *Engine) limit(ctx context.Context, route string) error {
	d, err := e.limiter.Check(ctx, route, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrRouteRateLimited) {
		e.metricInc(MetricRateLimitHit)
		return &RateLimitError{Route: route, RetryAfter: d.RetryAfter}
	}
	return storageError("rate limit", err)
}

func (e *Engine) createSession(ctx context.Context, user *User) (*AuthResult, error) {
	s, err := e.sessions.Create(ctx, user.identity(), session.Metadata{
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	})
	if err != nil {
		return nil, storageError("create session", err)
	}
	e.metricInc(MetricSessionCreated)
	return &AuthResult{Token: s.Token, User: user, Session: s}, nil
}

// upgradeHash re-hashes plain when digest was produced with weaker or
// different parameters. Failures only cost the upgrade.
func (e *Engine) upgradeHash(ctx context.Context, userID, plain, digest string) {
	if !e.hasher.NeedsUpgrade(digest) {
		return
	}
	upgraded, err := e.hasher.Hash(plain)
	if err == nil {
		err = e.store.SetPasswordHash(ctx, userID, upgraded)
	}
	if err != nil {
		e.logger.Warn("password hash upgrade failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.metricInc(MetricPasswordHashUpgraded)
}

// verifyOTP consumes a code. Every code failure maps to ErrOTPInvalid
// while keeping the precise cause in the chain.
func (e *Engine) verifyOTP(ctx context.Context, email string, purpose otp.Purpose, code string) error {
	err := e.otp.VerifyChallenge(ctx, email, purpose, strings.TrimSpace(code))
	switch {
	case err == nil:
		e.metricInc(MetricOTPVerifySuccess)
		return nil
	case errors.Is(err, otp.ErrAttemptsExceeded):
		e.metricInc(MetricOTPAttemptsExceeded)
		e.metricInc(MetricOTPVerifyFailure)
		return fmt.Errorf("%w: %w", ErrOTPInvalid, err)
	case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrExpired), errors.Is(err, otp.ErrMismatch):
		e.metricInc(MetricOTPVerifyFailure)
		return fmt.Errorf("%w: %w", ErrOTPInvalid, err)
	default:
		return storageError("verify otp", err)
	}
}

// normalizeEmail trims and lower-cases email and rejects anything that is
// not a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", newValidationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", newValidationError("invalid email")
	}
	return email, nil
}

func checkPolicy(p LengthPolicy, pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < p.MinLength:
		return newValidationError("password too short")
	case n > p.MaxLength:
		return newValidationError("password too long")
	}
	return nil
}

// checkHashable rejects plaintext the active hasher cannot take. bcrypt
// stops at 72 bytes, which multibyte passwords reach well inside the
// character policy.
func (e *Engine) checkHashable(pw string) error {
	if e.hasher.Algorithm() == password.AlgorithmBcrypt && len(pw) > password.MaxBcryptBytes {
		return newValidationError("password too long")
	}
	return nil
}
