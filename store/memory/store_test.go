package memory_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestUsersAndCredentials(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, authgate.CreateUserInput{Email: "alice@example.com", Name: "Alice", PasswordHash: "h1"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	_, err = s.CreateUser(ctx, authgate.CreateUserInput{Email: "alice@example.com"})
	require.ErrorIs(t, err, authgate.ErrUserExists)

	got, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, authgate.ErrUserNotFound)

	h, err := s.GetPasswordHash(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "h1", h)

	require.NoError(t, s.SetPasswordHash(ctx, u.ID, "h2"))
	h, _ = s.GetPasswordHash(ctx, u.ID)
	require.Equal(t, "h2", h)

	require.ErrorIs(t, s.SetPasswordHash(ctx, "missing", "h"), authgate.ErrUserNotFound)

	verified, err := s.MarkEmailVerified(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, verified.EmailVerified)
}

func TestSessionsJoinCurrentUser(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, authgate.CreateUserInput{Email: "bob@example.com"})

	now := time.Now()
	require.NoError(t, s.CreateSession(ctx, &session.Session{ID: "s1", Token: "t1", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateSession(ctx, &session.Session{ID: "s2", Token: "t2", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))

	_, _ = s.MarkEmailVerified(ctx, u.ID)
	got, err := s.GetSession(ctx, "t1")
	require.NoError(t, err)
	require.True(t, got.User.EmailVerified)
	require.Equal(t, "bob@example.com", got.User.Email)

	tokens, err := s.ListUserSessionTokens(ctx, u.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"t1", "t2"}, tokens)

	require.NoError(t, s.DeleteUserSessions(ctx, u.ID))
	_, err = s.GetSession(ctx, "t2")
	require.ErrorIs(t, err, session.ErrNotFound)
	require.ErrorIs(t, s.ExtendSession(ctx, "t1", now, now), session.ErrNotFound)
}

func TestChallengeConsume(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()
	good := sha256.Sum256([]byte("123456"))
	bad := sha256.Sum256([]byte("000000"))

	save := func() {
		require.NoError(t, s.Save(ctx, &otp.Challenge{
			Address: "a@example.com", Purpose: otp.PurposeSignIn, CodeHash: good,
			IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute),
		}))
	}

	save()
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeEmailVerification, good, 3, now), otp.ErrNotFound)
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, bad, 3, now), otp.ErrMismatch)
	require.NoError(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, good, 3, now))
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, good, 3, now), otp.ErrNotFound)

	save()
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, good, 3, now.Add(5*time.Minute)), otp.ErrExpired)

	save()
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, bad, 3, now), otp.ErrMismatch)
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, bad, 3, now), otp.ErrMismatch)
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, bad, 3, now), otp.ErrAttemptsExceeded)
	require.ErrorIs(t, s.Consume(ctx, "a@example.com", otp.PurposeSignIn, good, 3, now), otp.ErrNotFound)
}

type chanSender chan string

func (c chanSender) SendOTP(_ context.Context, _, code string, _ otp.Purpose) error {
	c <- code
	return nil
}

func TestEngineWithDatabaseChallengeBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authgate.DefaultConfig()
	cfg.Password.BcryptCost = 4
	cfg.RateLimit.Enabled = false
	cfg.OTP.Backend = authgate.OTPBackendDatabase

	store := memory.New()
	sender := make(chanSender, 4)
	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithChallengeStore(store).
		WithNotificationSender(sender).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ctx := context.Background()
	require.NoError(t, engine.SendVerificationOTP(ctx, "carol@example.com", "sign-in"))

	var code string
	select {
	case code = <-sender:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	for _, k := range mr.Keys() {
		if len(k) >= 4 && k[:4] == "otp:" {
			t.Fatalf("challenge leaked into redis: %s", k)
		}
	}

	res, err := engine.SignInEmailOTP(ctx, "carol@example.com", code, "Carol")
	require.NoError(t, err)
	require.True(t, res.User.EmailVerified)

	_, err = engine.SignInEmailOTP(ctx, "carol@example.com", code, "Carol")
	require.True(t, errors.Is(err, authgate.ErrOTPInvalid))
}
