package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/authgate/otp"
)

// SendVerificationOTP issues a code of the given type ("sign-in",
// "email-verification" or "forget-password") to email.
//
// Requests that must not reveal whether an account exists succeed
// without issuing anything: verification and reset codes for unknown
// addresses, and sign-in codes for unknown addresses when sign-up is
// disabled.
func (e *Engine) SendVerificationOTP(ctx context.Context, email, otpType string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteSendVerificationOTP); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	purpose, err := otp.ParsePurpose(otpType)
	if err != nil {
		return newValidationError("invalid otp type")
	}
	return e.sendOTP(ctx, email, purpose)
}

// ForgetPasswordEmailOTP issues a password reset code to email.
func (e *Engine) ForgetPasswordEmailOTP(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteForgetPassword); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	return e.sendOTP(ctx, email, otp.PurposeForgetPassword)
}

func (e *Engine) sendOTP(ctx context.Context, email string, purpose otp.Purpose) error {
	if purpose != otp.PurposeSignIn || e.config.OTP.DisableSignUp {
		_, err := e.store.GetUserByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			e.logger.Debug("otp requested for unknown address", slog.String("purpose", string(purpose)))
			return nil
		}
		if err != nil {
			return storageError("get user", err)
		}
	}

	receipt, err := e.otp.SendChallenge(ctx, email, purpose)
	if err != nil {
		return storageError("issue otp", err)
	}
	if !receipt.Queued {
		e.logger.Warn("otp delivery not queued", slog.String("purpose", string(purpose)))
	}
	e.metricInc(MetricOTPSent)
	return nil
}

// VerifyEmailResult is the outcome of VerifyEmailOTP. Auth is set only
// when auto sign-in after verification is enabled.
type VerifyEmailResult struct {
	User *User
	Auth *AuthResult
}

// VerifyEmailOTP consumes an email-verification code and marks the
// address verified.
func (e *Engine) VerifyEmailOTP(ctx context.Context, email, code string) (*VerifyEmailResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteVerifyEmail); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := e.verifyOTP(ctx, email, otp.PurposeEmailVerification, code); err != nil {
		return nil, err
	}

	user, err := e.ownerOf(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.EmailVerified {
		if user, err = e.store.MarkEmailVerified(ctx, user.ID); err != nil {
			return nil, storageError("mark verified", err)
		}
		if err := e.sessions.RefreshUser(ctx, user.ID); err != nil {
			e.logger.Warn("session cache refresh failed", slog.String("error", err.Error()))
		}
	}
	e.metricInc(MetricEmailVerified)

	out := &VerifyEmailResult{User: user}
	if e.config.OTP.AutoSignInAfterVerification {
		if out.Auth, err = e.createSession(ctx, user); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SignInEmailOTP consumes a sign-in code and issues a session, creating a
// verified user on first sign-in unless sign-up is disabled.
func (e *Engine) SignInEmailOTP(ctx context.Context, email, code, name string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteSignInEmailOTP); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	issuer, err := e.strategies.issuer(StrategyEmailOTP)
	if err != nil {
		return nil, err
	}
	user, err := issuer.Issue(ctx, Credentials{Email: email, OTP: code, Name: strings.TrimSpace(name)})
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSignInSuccess)

	return e.createSession(ctx, user)
}

// ResetPasswordEmailOTP consumes a forget-password code and sets a new
// password.
func (e *Engine) ResetPasswordEmailOTP(ctx context.Context, email, code, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteResetPassword); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	// Policy first: a rejected password must not burn the code.
	if err := checkPolicy(e.config.Password.SignUp, newPassword); err != nil {
		return err
	}
	if err := e.checkHashable(newPassword); err != nil {
		return err
	}
	if err := e.verifyOTP(ctx, email, otp.PurposeForgetPassword, code); err != nil {
		return err
	}

	user, err := e.ownerOf(ctx, email)
	if err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := e.store.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return storageError("set password", err)
	}
	if !user.EmailVerified {
		if _, err := e.store.MarkEmailVerified(ctx, user.ID); err != nil {
			e.logger.Warn("mark verified after reset failed", slog.String("error", err.Error()))
		}
	}

	if e.config.RevokeSessionsOnPasswordReset {
		if err := e.sessions.InvalidateUser(ctx, user.ID); err != nil {
			return storageError("revoke sessions", err)
		}
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricPasswordResetSuccess)
	return nil
}

// ownerOf loads the user a consumed code was issued to. A user deleted
// between issue and verify makes the code worthless.
func (e *Engine) ownerOf(ctx context.Context, email string) (*User, error) {
	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, storageError("get user", err)
	}
	return user, nil
}
