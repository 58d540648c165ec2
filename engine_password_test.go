package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestSignUpEmailCreatesUserAndSession(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res := env.signUp(t, "  Alice@Example.com ", "correct-horse")
	if res.Token == "" || res.Session == nil {
		t.Fatal("expected a session to be issued")
	}
	if res.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", res.User.Email)
	}
	if res.User.EmailVerified {
		t.Fatal("password sign-up must not mark the email verified")
	}

	hash := env.store.hashes[res.User.ID]
	if hash == "" || hash == "correct-horse" {
		t.Fatal("expected stored password to be hashed")
	}
	if !env.engine.hasher.Verify("correct-horse", hash) {
		t.Fatal("expected stored hash to verify")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSignUpSuccess]; got != 1 {
		t.Fatalf("expected 1 sign-up, got %d", got)
	}
}

func TestSignUpEmailRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signUp(t, "alice@example.com", "correct-horse")

	_, err := env.engine.SignUpEmail(context.Background(), SignUpInput{Email: "ALICE@example.com", Password: "another-pass"})
	mustErrIs(t, err, ErrUserExists)
}

func TestSignUpEmailValidation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name  string
		input SignUpInput
		msg   string
	}{
		{"missing email", SignUpInput{Password: "correct-horse"}, "email is required"},
		{"bad email", SignUpInput{Email: "not-an-email", Password: "correct-horse"}, "invalid email"},
		{"display name", SignUpInput{Email: "Bob <bob@example.com>", Password: "correct-horse"}, "invalid email"},
		{"short password", SignUpInput{Email: "bob@example.com", Password: "short"}, "password too short"},
		{"long password", SignUpInput{Email: "bob@example.com", Password: strings.Repeat("x", 73)}, "password too long"},
		{"short multibyte password", SignUpInput{Email: "bob@example.com", Password: strings.Repeat("é", 7)}, "password too short"},
		{"over 72 bytes", SignUpInput{Email: "bob@example.com", Password: strings.Repeat("😀", 19)}, "password too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.SignUpEmail(context.Background(), tt.input)
			mustErrIs(t, err, ErrValidation)
			if msg, ok := ClientMessage(err); !ok || msg != tt.msg {
				t.Fatalf("expected client message %q, got %q (ok=%v)", tt.msg, msg, ok)
			}
		})
	}
	if len(env.store.users) != 0 {
		t.Fatal("expected no user to be created")
	}
}

func TestSignInEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signUp(t, "alice@example.com", "correct-horse")
	ctx := context.Background()

	res, err := env.engine.SignInEmail(ctx, "Alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("SignInEmail failed: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected session token")
	}

	_, err = env.engine.SignInEmail(ctx, "alice@example.com", "wrong-horse")
	mustErrIs(t, err, ErrInvalidCredentials)

	_, err = env.engine.SignInEmail(ctx, "nobody@example.com", "correct-horse")
	mustErrIs(t, err, ErrInvalidCredentials)

	_, err = env.engine.SignInEmail(ctx, "alice@example.com", "")
	mustErrIs(t, err, ErrInvalidCredentials)

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricSignInSuccess] != 1 || snap.Counters[MetricSignInFailure] != 3 {
		t.Fatalf("unexpected sign-in counters: %+v", snap.Counters)
	}
}

func TestSignInEmailWithoutCredentialIsInvalid(t *testing.T) {
	env := newTestEnv(t, testConfig())
	u, err := env.store.CreateUser(context.Background(), CreateUserInput{Email: "otp-only@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	_, err = env.engine.SignInEmail(context.Background(), u.Email, "anything-at-all")
	mustErrIs(t, err, ErrInvalidCredentials)
}

func TestSignInEmailUpgradesWeakHash(t *testing.T) {
	cfg := testConfig()
	cfg.Password.BcryptCost = 5
	env := newTestEnv(t, cfg)

	weak, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("seed hash: %v", err)
	}
	u, _ := env.store.CreateUser(context.Background(), CreateUserInput{Email: "old@example.com", PasswordHash: string(weak)})

	if _, err := env.engine.SignInEmail(context.Background(), u.Email, "correct-horse"); err != nil {
		t.Fatalf("SignInEmail failed: %v", err)
	}

	upgraded := env.store.hashes[u.ID]
	cost, err := bcrypt.Cost([]byte(upgraded))
	if err != nil || cost != 5 {
		t.Fatalf("expected hash upgraded to cost 5, got cost=%d err=%v", cost, err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordHashUpgraded] != 1 {
		t.Fatal("expected upgrade metric")
	}
}

func TestSetPasswordChecksLengthBeforeSession(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, pw := range []string{"", "seven77", strings.Repeat("p", 21), strings.Repeat("é", 7), strings.Repeat("密", 21)} {
		err := env.engine.SetPassword(context.Background(), "", pw)
		mustErrIs(t, err, ErrValidation)
		if msg, _ := ClientMessage(err); msg != "password must be between 8 and 20 characters" {
			t.Fatalf("unexpected message %q", msg)
		}
	}

	for _, pw := range []string{"eight888", strings.Repeat("p", 20), strings.Repeat("密", 8), strings.Repeat("é", 20)} {
		err := env.engine.SetPassword(context.Background(), "", pw)
		mustErrIs(t, err, ErrUnauthorized)
	}
}

func TestSetPasswordCountsCharacters(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	res := env.signUp(t, "alice@example.com", "correct-horse")
	before := env.store.hashes[res.User.ID]

	err := env.engine.SetPassword(ctx, res.Token, strings.Repeat("é", 7))
	mustErrIs(t, err, ErrValidation)
	if env.store.hashes[res.User.ID] != before {
		t.Fatal("rejected password replaced the stored credential")
	}

	// 20 characters, 80 bytes: past what bcrypt can hash.
	err = env.engine.SetPassword(ctx, res.Token, strings.Repeat("😀", 20))
	mustErrIs(t, err, ErrValidation)
	if errors.Is(err, ErrPasswordSetFailed) {
		t.Fatalf("oversized input must be a client error: %v", err)
	}
	if env.store.hashes[res.User.ID] != before {
		t.Fatal("rejected password replaced the stored credential")
	}

	cjk := strings.Repeat("密", 8)
	if err := env.engine.SetPassword(ctx, res.Token, cjk); err != nil {
		t.Fatalf("SetPassword(8 multibyte chars) failed: %v", err)
	}
	if _, err := env.engine.SignInEmail(ctx, "alice@example.com", cjk); err != nil {
		t.Fatalf("expected sign-in with the new password, got %v", err)
	}
}

func TestSetPasswordRequiresLiveSession(t *testing.T) {
	env := newTestEnv(t, testConfig())

	err := env.engine.SetPassword(context.Background(), "not-a-session", "new-password")
	mustErrIs(t, err, ErrUnauthorized)

	res := env.signUp(t, "alice@example.com", "correct-horse")
	if err := env.engine.SignOut(context.Background(), res.Token); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	before := env.store.hashes[res.User.ID]
	err = env.engine.SetPassword(context.Background(), res.Token, "new-password")
	mustErrIs(t, err, ErrUnauthorized)

	if env.store.hashes[res.User.ID] != before {
		t.Fatal("unauthorized set-password replaced the stored credential")
	}
	if _, err := env.engine.SignInEmail(context.Background(), "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("old password must still sign in, got %v", err)
	}
	_, err = env.engine.SignInEmail(context.Background(), "alice@example.com", "new-password")
	mustErrIs(t, err, ErrInvalidCredentials)
}

func TestSetPasswordForDeletedUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	res := env.signUp(t, "alice@example.com", "correct-horse")

	env.store.mu.Lock()
	delete(env.store.users, res.User.ID)
	env.store.mu.Unlock()

	err := env.engine.SetPassword(context.Background(), res.Token, "new-password")
	mustErrIs(t, err, ErrUnauthorized)
	if env.engine.MetricsSnapshot().Counters[MetricPasswordSetSuccess] != 0 {
		t.Fatal("expected no password set")
	}
}

func TestSetPasswordForOTPOnlyUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	u, _ := env.store.CreateUser(ctx, CreateUserInput{Email: "otp@example.com", EmailVerified: true})
	auth, err := env.engine.createSession(ctx, u)
	if err != nil {
		t.Fatalf("createSession: %v", err)
	}

	if err := env.engine.SetPassword(ctx, auth.Token, "brand-new-pw"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if _, err := env.engine.SignInEmail(ctx, u.Email, "brand-new-pw"); err != nil {
		t.Fatalf("expected sign-in with the new password, got %v", err)
	}

	// A second call replaces the credential.
	if err := env.engine.SetPassword(ctx, auth.Token, "another-pw-1"); err != nil {
		t.Fatalf("SetPassword replace failed: %v", err)
	}
	_, err = env.engine.SignInEmail(ctx, u.Email, "brand-new-pw")
	mustErrIs(t, err, ErrInvalidCredentials)
}

func TestSetPasswordStoreFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	res := env.signUp(t, "alice@example.com", "correct-horse")
	env.store.failSetHash = errors.New("disk full")

	err := env.engine.SetPassword(context.Background(), res.Token, "new-password")
	mustErrIs(t, err, ErrPasswordSetFailed)
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("store failure must be distinct from client errors: %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricPasswordSetFailure] != 1 {
		t.Fatal("expected failure metric")
	}
}

func TestSignInRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	env := newTestEnv(t, cfg)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 3; i++ {
		_, err := env.engine.SignInEmail(ctx, "nobody@example.com", "whatever-pass")
		mustErrIs(t, err, ErrInvalidCredentials)
	}

	_, err := env.engine.SignInEmail(ctx, "nobody@example.com", "whatever-pass")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > 10*time.Second {
		t.Fatalf("unexpected RetryAfter %s", rle.RetryAfter)
	}
	mustErrIs(t, err, ErrRateLimited)

	// Another client has its own budget.
	other := WithClientIP(context.Background(), "203.0.113.8")
	_, err = env.engine.SignInEmail(other, "nobody@example.com", "whatever-pass")
	mustErrIs(t, err, ErrInvalidCredentials)

	env.mr.FastForward(11 * time.Second)
	_, err = env.engine.SignInEmail(ctx, "nobody@example.com", "whatever-pass")
	mustErrIs(t, err, ErrInvalidCredentials)
}

func TestRateLimiterOutageIsStorageError(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	env := newTestEnv(t, cfg)
	env.mr.SetError("ERR backend down")

	_, err := env.engine.SignInEmail(context.Background(), "a@example.com", "whatever-pass")
	mustErrIs(t, err, ErrStorage)
}
