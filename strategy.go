package authgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/session"
)

// StrategyKind names a credential type.
type StrategyKind string

const (
	StrategyPassword StrategyKind = "password"
	StrategyEmailOTP StrategyKind = "email-otp"
	StrategySession  StrategyKind = "session"
)

// Credentials is what a client presents to sign in.
type Credentials struct {
	Email    string
	Password string
	OTP      string
	Name     string
}

// Strategy is one registered credential type. A strategy implements any
// subset of Issuer, Validator and Revoker.
type Strategy interface {
	Kind() StrategyKind
}

// Issuer turns presented credentials into the user a session is issued to.
type Issuer interface {
	Strategy
	Issue(ctx context.Context, c Credentials) (*User, error)
}

// Validator resolves a bearer credential to a live session.
type Validator interface {
	Strategy
	Validate(ctx context.Context, token string) (*session.Session, error)
}

// Revoker terminates a bearer credential.
type Revoker interface {
	Strategy
	Revoke(ctx context.Context, token string) error
}

type strategyTable map[StrategyKind]Strategy

func (t strategyTable) issuer(kind StrategyKind) (Issuer, error) {
	if s, ok := t[kind].(Issuer); ok {
		return s, nil
	}
	return nil, ErrStrategyUnsupported
}

func (t strategyTable) validator(kind StrategyKind) (Validator, error) {
	if s, ok := t[kind].(Validator); ok {
		return s, nil
	}
	return nil, ErrStrategyUnsupported
}

func (t strategyTable) revoker(kind StrategyKind) (Revoker, error) {
	if s, ok := t[kind].(Revoker); ok {
		return s, nil
	}
	return nil, ErrStrategyUnsupported
}

// passwordStrategy checks an email and password against the stored hash.
type passwordStrategy struct{ e *Engine }

func (passwordStrategy) Kind() StrategyKind { return StrategyPassword }

func (s passwordStrategy) Issue(ctx context.Context, c Credentials) (*User, error) {
	e := s.e

	user, err := e.store.GetUserByEmail(ctx, c.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn the same hashing time as a real compare.
			e.hasher.Verify(c.Password, e.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("get user", err)
	}

	hash, err := e.store.GetPasswordHash(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			e.hasher.Verify(c.Password, e.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("get credential", err)
	}

	if !e.hasher.Verify(c.Password, hash) {
		return nil, ErrInvalidCredentials
	}

	e.upgradeHash(ctx, user.ID, c.Password, hash)
	return user, nil
}

// emailOTPStrategy consumes a sign-in code and resolves, or creates, the
// owner of the address.
type emailOTPStrategy struct{ e *Engine }

func (emailOTPStrategy) Kind() StrategyKind { return StrategyEmailOTP }

func (s emailOTPStrategy) Issue(ctx context.Context, c Credentials) (*User, error) {
	e := s.e

	if err := e.verifyOTP(ctx, c.Email, otp.PurposeSignIn, c.OTP); err != nil {
		return nil, err
	}

	user, err := e.store.GetUserByEmail(ctx, c.Email)
	switch {
	case err == nil:
		if !user.EmailVerified {
			// Receiving the code proves ownership of the address.
			if user, err = e.store.MarkEmailVerified(ctx, user.ID); err != nil {
				return nil, storageError("mark verified", err)
			}
		}
		return user, nil
	case !errors.Is(err, ErrUserNotFound):
		return nil, storageError("get user", err)
	case e.config.OTP.DisableSignUp:
		return nil, ErrOTPInvalid
	}

	user, err = e.store.CreateUser(ctx, CreateUserInput{Email: c.Email, Name: c.Name, EmailVerified: true})
	if err != nil {
		if !errors.Is(err, ErrUserExists) {
			return nil, storageError("create user", err)
		}
		// Lost a race with a concurrent sign-up for the same address.
		if user, err = e.store.GetUserByEmail(ctx, c.Email); err != nil {
			return nil, storageError("get user", err)
		}
		return user, nil
	}
	e.metricInc(MetricSignUpSuccess)
	return user, nil
}

// sessionStrategy validates and revokes opaque session tokens.
type sessionStrategy struct{ e *Engine }

func (sessionStrategy) Kind() StrategyKind { return StrategySession }

func (s sessionStrategy) Validate(ctx context.Context, token string) (*session.Session, error) {
	sess, err := s.e.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, storageError("get session", err)
	}
	return sess, nil
}

func (s sessionStrategy) Revoke(ctx context.Context, token string) error {
	if err := s.e.sessions.Invalidate(ctx, token); err != nil {
		return storageError("invalidate session", err)
	}
	return nil
}
