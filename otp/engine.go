package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal"
)

// Delivery is one code handed to the notification pipeline.
type Delivery struct {
	Address   string
	Code      string
	Purpose   Purpose
	ExpiresAt time.Time
}

// Deliverer accepts deliveries without blocking on the transport. It
// returns false when the delivery was dropped.
type Deliverer interface {
	Enqueue(ctx context.Context, d Delivery) bool
}

// Config tunes code issuance.
type Config struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

// DefaultConfig returns 6-digit codes valid for five minutes with three
// attempts.
func DefaultConfig() Config {
	return Config{
		Digits:      6,
		TTL:         5 * time.Minute,
		MaxAttempts: 3,
	}
}

// Validate checks the config ranges.
func (c Config) Validate() error {
	if c.Digits < 4 || c.Digits > 10 {
		return errors.New("otp: digits must be in [4, 10]")
	}
	if c.TTL <= 0 {
		return errors.New("otp: ttl must be > 0")
	}
	if c.MaxAttempts < 0 {
		return errors.New("otp: max attempts must be >= 0")
	}
	return nil
}

// Receipt describes an issued challenge without revealing its code.
type Receipt struct {
	Address   string
	Purpose   Purpose
	ExpiresAt time.Time
	Queued    bool
}

// Engine issues and verifies one-time codes.
//
// Lifecycle per (purpose, address): NONE -> ISSUED -> CONSUMED | EXPIRED.
// Issuing again while ISSUED replaces the code.
type Engine struct {
	store     Store
	deliverer Deliverer
	config    Config
	now       func() time.Time
}

// NewEngine wires a challenge store and a deliverer.
func NewEngine(store Store, deliverer Deliverer, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("otp: store is required")
	}
	if deliverer == nil {
		return nil, errors.New("otp: deliverer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{store: store, deliverer: deliverer, config: cfg, now: time.Now}, nil
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Config returns the active configuration.
func (e *Engine) Config() Config { return e.config }

// SendChallenge issues a fresh code for (purpose, address), superseding
// any earlier one, and queues it for delivery. Delivery problems are
// reported through Receipt.Queued and never fail the call.
func (e *Engine) SendChallenge(ctx context.Context, address string, purpose Purpose) (Receipt, error) {
	if _, err := ParsePurpose(string(purpose)); err != nil {
		return Receipt{}, err
	}

	code, err := internal.NewOTP(e.config.Digits)
	if err != nil {
		return Receipt{}, fmt.Errorf("otp: generate code: %w", err)
	}

	now := e.now()
	c := &Challenge{
		Address:   address,
		Purpose:   purpose,
		CodeHash:  internal.HashSecret(code),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.TTL),
	}
	if err := e.store.Save(ctx, c); err != nil {
		return Receipt{}, err
	}

	queued := e.deliverer.Enqueue(ctx, Delivery{
		Address:   address,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: c.ExpiresAt,
	})

	return Receipt{Address: address, Purpose: purpose, ExpiresAt: c.ExpiresAt, Queued: queued}, nil
}

// VerifyChallenge consumes the active challenge if code matches. It
// returns ErrNotFound, ErrExpired, ErrMismatch or ErrAttemptsExceeded on
// failure.
func (e *Engine) VerifyChallenge(ctx context.Context, address string, purpose Purpose, code string) error {
	if _, err := ParsePurpose(string(purpose)); err != nil {
		return err
	}
	return e.store.Consume(ctx, address, purpose, internal.HashSecret(code), e.config.MaxAttempts, e.now())
}

// Revoke discards the active challenge, if any.
func (e *Engine) Revoke(ctx context.Context, address string, purpose Purpose) error {
	return e.store.Delete(ctx, address, purpose)
}
