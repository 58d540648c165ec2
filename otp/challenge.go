package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Purpose scopes a challenge. A code issued for one purpose never
// satisfies another.
type Purpose string

const (
	PurposeSignIn            Purpose = "sign-in"
	PurposeEmailVerification Purpose = "email-verification"
	PurposeForgetPassword    Purpose = "forget-password"
)

var (
	ErrNotFound         = errors.New("otp: no active challenge")
	ErrExpired          = errors.New("otp: challenge expired")
	ErrMismatch         = errors.New("otp: code mismatch")
	ErrAttemptsExceeded = errors.New("otp: too many attempts")
	ErrInvalidPurpose   = errors.New("otp: invalid purpose")
	ErrStoreUnavailable = errors.New("otp: store unavailable")
)

// ParsePurpose accepts the wire names of the three purposes, plus
// "password-reset" as an alias of forget-password.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(strings.TrimSpace(s)); p {
	case PurposeSignIn, PurposeEmailVerification, PurposeForgetPassword:
		return p, nil
	case "password-reset":
		return PurposeForgetPassword, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
}

// Challenge is the persisted state of one issued code. The code itself is
// never stored, only its SHA-256 digest.
type Challenge struct {
	Address   string
	Purpose   Purpose
	CodeHash  [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	Attempts  int
}

// Expired reports whether now is at or past the expiry instant.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Store persists challenges keyed by (purpose, address).
//
// Save replaces any existing challenge for the pair. Consume checks
// expiry, then the code digest, and on success deletes the challenge so
// it cannot be used twice. A wrong code increments the attempt counter
// and destroys the challenge once maxAttempts is reached.
type Store interface {
	Save(ctx context.Context, c *Challenge) error
	Consume(ctx context.Context, address string, purpose Purpose, codeHash [32]byte, maxAttempts int, now time.Time) error
	Delete(ctx context.Context, address string, purpose Purpose) error
}
