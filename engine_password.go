package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SignUpInput is the body of an email sign-up.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Image    string
}

// SignUpEmail creates a user with a password credential and signs them in.
func (e *Engine) SignUpEmail(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteSignUpEmail); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPolicy(e.config.Password.SignUp, in.Password); err != nil {
		return nil, err
	}
	if err := e.checkHashable(in.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := e.store.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Image:        in.Image,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricSignUpDuplicate)
			return nil, ErrUserExists
		}
		return nil, storageError("create user", err)
	}
	e.metricInc(MetricSignUpSuccess)

	return e.createSession(ctx, user)
}

// SignInEmail checks an email and password and issues a session. Unknown
// email and wrong password are indistinguishable to the caller.
func (e *Engine) SignInEmail(ctx context.Context, email, password string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteSignInEmail); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		e.metricInc(MetricSignInFailure)
		return nil, ErrInvalidCredentials
	}

	issuer, err := e.strategies.issuer(StrategyPassword)
	if err != nil {
		return nil, err
	}
	user, err := issuer.Issue(ctx, Credentials{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.metricInc(MetricSignInFailure)
		}
		return nil, err
	}
	e.metricInc(MetricSignInSuccess)

	return e.createSession(ctx, user)
}

// SetPassword sets or replaces the password of the session owner.
//
// The length policy is checked before anything else, so a bad password
// never costs a store lookup or a hash. An absent or dead session yields
// ErrUnauthorized; a failed save yields ErrPasswordSetFailed.
func (e *Engine) SetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteInitPassword); err != nil {
		return err
	}

	policy := e.config.Password.Set
	if !policy.allows(newPassword) {
		return newValidationError(fmt.Sprintf("password must be between %d and %d characters", policy.MinLength, policy.MaxLength))
	}
	if err := e.checkHashable(newPassword); err != nil {
		return err
	}

	validator, err := e.strategies.validator(StrategySession)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrUnauthorized
	}
	sess, err := validator.Validate(ctx, token)
	if err != nil {
		return err
	}
	// The session may outlive its user.
	user, err := e.store.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return storageError("load session user", err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err == nil {
		err = e.store.SetPasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		e.metricInc(MetricPasswordSetFailure)
		e.logger.Error("password set failed",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", ErrPasswordSetFailed, err)
	}

	e.metricInc(MetricPasswordSetSuccess)
	return nil
}
