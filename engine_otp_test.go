package authgate

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authgate/otp"
)

func TestVerifyEmailOTPFlow(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	res := env.signUp(t, "alice@example.com", "correct-horse")

	if err := env.engine.SendVerificationOTP(ctx, "alice@example.com", "email-verification"); err != nil {
		t.Fatalf("SendVerificationOTP failed: %v", err)
	}
	sent := env.sender.next(t)
	if sent.address != "alice@example.com" || sent.purpose != otp.PurposeEmailVerification || len(sent.code) != 6 {
		t.Fatalf("unexpected delivery %+v", sent)
	}

	out, err := env.engine.VerifyEmailOTP(ctx, "alice@example.com", sent.code)
	if err != nil {
		t.Fatalf("VerifyEmailOTP failed: %v", err)
	}
	if !out.User.EmailVerified {
		t.Fatal("expected user to be verified")
	}
	if out.Auth != nil {
		t.Fatal("expected no session without auto sign-in")
	}

	// Cached session reflects the new verification state.
	view, err := env.engine.ResolveSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if !view.User.EmailVerified {
		t.Fatal("expected cached session to be refreshed")
	}

	_, err = env.engine.VerifyEmailOTP(ctx, "alice@example.com", sent.code)
	mustErrIs(t, err, ErrOTPInvalid)
	mustErrIs(t, err, otp.ErrNotFound)
}

func TestVerifyEmailOTPAutoSignIn(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.AutoSignInAfterVerification = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	env.signUp(t, "alice@example.com", "correct-horse")

	if err := env.engine.SendVerificationOTP(ctx, "alice@example.com", "email-verification"); err != nil {
		t.Fatalf("SendVerificationOTP failed: %v", err)
	}
	out, err := env.engine.VerifyEmailOTP(ctx, "alice@example.com", env.sender.next(t).code)
	if err != nil {
		t.Fatalf("VerifyEmailOTP failed: %v", err)
	}
	if out.Auth == nil || out.Auth.Token == "" {
		t.Fatal("expected a session after verification")
	}
}

func TestSendVerificationOTPSupersedesEarlierCode(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signUp(t, "alice@example.com", "correct-horse")

	_ = env.engine.SendVerificationOTP(ctx, "alice@example.com", "email-verification")
	first := env.sender.next(t)
	_ = env.engine.SendVerificationOTP(ctx, "alice@example.com", "email-verification")
	second := env.sender.next(t)

	if first.code != second.code {
		_, err := env.engine.VerifyEmailOTP(ctx, "alice@example.com", first.code)
		mustErrIs(t, err, ErrOTPInvalid)
	}
	if _, err := env.engine.VerifyEmailOTP(ctx, "alice@example.com", second.code); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestSendVerificationOTPUnknownAddressIsSilent(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for _, typ := range []string{"email-verification", "forget-password", "password-reset"} {
		if err := env.engine.SendVerificationOTP(ctx, "ghost@example.com", typ); err != nil {
			t.Fatalf("%s: expected silent success, got %v", typ, err)
		}
	}
	if err := env.engine.ForgetPasswordEmailOTP(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	env.sender.expectNone(t)
}

func TestSendVerificationOTPRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, testConfig())
	err := env.engine.SendVerificationOTP(context.Background(), "alice@example.com", "magic-link")
	mustErrIs(t, err, ErrValidation)
}

func TestSendVerificationOTPRateLimitedToOnePerMinute(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	env := newTestEnv(t, cfg)
	ctx := WithClientIP(context.Background(), "198.51.100.1")

	if err := env.engine.SendVerificationOTP(ctx, "new@example.com", "sign-in"); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	env.sender.next(t)

	err := env.engine.SendVerificationOTP(ctx, "new@example.com", "sign-in")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Route != RouteSendVerificationOTP {
		t.Fatalf("unexpected route %q", rle.Route)
	}
	env.sender.expectNone(t)
}

func TestSignInEmailOTPCreatesVerifiedUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if err := env.engine.SendVerificationOTP(ctx, "New@Example.com", "sign-in"); err != nil {
		t.Fatalf("SendVerificationOTP failed: %v", err)
	}
	code := env.sender.next(t).code

	res, err := env.engine.SignInEmailOTP(ctx, "new@example.com", code, "Newcomer")
	if err != nil {
		t.Fatalf("SignInEmailOTP failed: %v", err)
	}
	if !res.User.EmailVerified || res.User.Name != "Newcomer" {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if _, err := env.engine.ResolveSession(ctx, res.Token); err != nil {
		t.Fatalf("expected a live session, got %v", err)
	}
	if _, err := env.store.GetPasswordHash(ctx, res.User.ID); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("otp sign-up must not create a password credential, got %v", err)
	}
}

func TestSignInEmailOTPVerifiesExistingUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signUp(t, "alice@example.com", "correct-horse")

	_ = env.engine.SendVerificationOTP(ctx, "alice@example.com", "sign-in")
	res, err := env.engine.SignInEmailOTP(ctx, "alice@example.com", env.sender.next(t).code, "")
	if err != nil {
		t.Fatalf("SignInEmailOTP failed: %v", err)
	}
	if !res.User.EmailVerified {
		t.Fatal("expected sign-in by code to verify the address")
	}
	if len(env.store.users) != 1 {
		t.Fatal("expected no duplicate user")
	}
}

func TestSignInEmailOTPSignUpDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.DisableSignUp = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if err := env.engine.SendVerificationOTP(ctx, "ghost@example.com", "sign-in"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	env.sender.expectNone(t)

	_, err := env.engine.SignInEmailOTP(ctx, "ghost@example.com", "123456", "")
	mustErrIs(t, err, ErrOTPInvalid)
	if len(env.store.users) != 0 {
		t.Fatal("expected no user to be created")
	}
}

func TestSignInEmailOTPAttemptsExceeded(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_ = env.engine.SendVerificationOTP(ctx, "new@example.com", "sign-in")
	code := env.sender.next(t).code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 2; i++ {
		_, err := env.engine.SignInEmailOTP(ctx, "new@example.com", wrong, "")
		mustErrIs(t, err, otp.ErrMismatch)
	}
	_, err := env.engine.SignInEmailOTP(ctx, "new@example.com", wrong, "")
	mustErrIs(t, err, otp.ErrAttemptsExceeded)

	// The challenge is gone; even the right code fails now.
	_, err = env.engine.SignInEmailOTP(ctx, "new@example.com", code, "")
	mustErrIs(t, err, ErrOTPInvalid)

	if env.engine.MetricsSnapshot().Counters[MetricOTPAttemptsExceeded] != 1 {
		t.Fatal("expected attempts-exceeded metric")
	}
}

func TestCodeForOnePurposeDoesNotSatisfyAnother(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signUp(t, "alice@example.com", "correct-horse")

	_ = env.engine.SendVerificationOTP(ctx, "alice@example.com", "email-verification")
	code := env.sender.next(t).code

	_, err := env.engine.SignInEmailOTP(ctx, "alice@example.com", code, "")
	mustErrIs(t, err, ErrOTPInvalid)
}

func TestResetPasswordEmailOTP(t *testing.T) {
	cfg := testConfig()
	cfg.RevokeSessionsOnPasswordReset = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	res := env.signUp(t, "alice@example.com", "correct-horse")

	if err := env.engine.ForgetPasswordEmailOTP(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgetPasswordEmailOTP failed: %v", err)
	}
	sent := env.sender.next(t)
	if sent.purpose != otp.PurposeForgetPassword {
		t.Fatalf("unexpected purpose %s", sent.purpose)
	}

	// A rejected password must leave the code usable.
	err := env.engine.ResetPasswordEmailOTP(ctx, "alice@example.com", sent.code, "short")
	mustErrIs(t, err, ErrValidation)

	if err := env.engine.ResetPasswordEmailOTP(ctx, "alice@example.com", sent.code, "fresh-horse"); err != nil {
		t.Fatalf("ResetPasswordEmailOTP failed: %v", err)
	}

	if _, err := env.engine.SignInEmail(ctx, "alice@example.com", "fresh-horse"); err != nil {
		t.Fatalf("expected sign-in with new password, got %v", err)
	}
	_, err = env.engine.ResolveSession(ctx, res.Token)
	mustErrIs(t, err, ErrUnauthorized)

	err = env.engine.ResetPasswordEmailOTP(ctx, "alice@example.com", sent.code, "other-horse")
	mustErrIs(t, err, ErrOTPInvalid)
}

func TestDeliveryFailureKeepsChallengeValid(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.sender.fail = errors.New("smtp down")
	ctx := context.Background()
	env.signUp(t, "alice@example.com", "correct-horse")

	if err := env.engine.SendVerificationOTP(ctx, "alice@example.com", "email-verification"); err != nil {
		t.Fatalf("delivery failure must not fail the request, got %v", err)
	}
	if !env.mr.Exists("otp:email-verification:alice@example.com") {
		t.Fatalf("expected stored challenge, keys=%v", env.mr.Keys())
	}
}
