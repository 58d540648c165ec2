package authgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks input rejected before any state is touched. The
	// wrapped message is safe to show to clients.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized means no live session accompanied the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserExists is returned by CredentialStore.CreateUser on duplicate email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by CredentialStore lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrCredentialNotFound means the user has no password credential.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrOTPInvalid is the single client-facing OTP failure.
	ErrOTPInvalid = errors.New("invalid or expired otp")
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("too many requests")
	// ErrStorage wraps failures of the durable store, the cache or the limiter.
	ErrStorage = errors.New("storage unavailable")
	// ErrPasswordSetFailed is returned when a validated password could not be saved.
	ErrPasswordSetFailed = errors.New("password set failed")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStrategyUnsupported means no registered strategy implements the operation.
	ErrStrategyUnsupported = errors.New("strategy does not support operation")
)

// RateLimitError reports a rejected request and when to retry.
type RateLimitError struct {
	Route      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry after %s", ErrRateLimited, e.Route, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// validationError carries a client-safe message.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }

func newValidationError(msg string) error {
	return &validationError{msg: msg}
}

// ClientMessage returns the text the HTTP layer may echo for err, and
// false when err carries nothing client-safe.
func ClientMessage(err error) (string, bool) {
	var ve *validationError
	if errors.As(err, &ve) {
		return ve.msg, true
	}
	return "", false
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
