package authgate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// fakeStore is an in-memory CredentialStore with failure switches.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]*User
	byEmail     map[string]string
	hashes      map[string]string
	sessions    map[string]*session.Session
	failSetHash error
	failGetUser error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*User{},
		byEmail:  map[string]string{},
		hashes:   map[string]string{},
		sessions: map[string]*session.Session{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, in CreateUserInput) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[in.Email]; ok {
		return nil, ErrUserExists
	}
	now := time.Now()
	u := &User{
		ID:            uuid.NewString(),
		Email:         in.Email,
		Name:          in.Name,
		Image:         in.Image,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.users[u.ID] = u
	f.byEmail[u.Email] = u.ID
	if in.PasswordHash != "" {
		f.hashes[u.ID] = in.PasswordHash
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetUser != nil {
		return nil, f.failGetUser
	}
	id, ok := f.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *f.users[id]
	return &cp, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) MarkEmailVerified(_ context.Context, userID string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.EmailVerified = true
	for _, s := range f.sessions {
		if s.UserID == userID {
			s.User.EmailVerified = true
		}
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetPasswordHash(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[userID]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return h, nil
}

func (f *fakeStore) SetPasswordHash(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetHash != nil {
		return f.failSetHash
	}
	f.hashes[userID] = hash
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreateSession(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.Token] = &cp
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, token string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ExtendSession(_ context.Context, token string, expiresAt, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[token]; ok {
		s.ExpiresAt, s.UpdatedAt = expiresAt, updatedAt
	}
	return nil
}

func (f *fakeStore) DeleteSession(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeStore) ListUserSessionTokens(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for tok, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, tok)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, tok)
		}
	}
	return nil
}

func (f *fakeStore) sessionCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

type sentCode struct {
	address string
	code    string
	purpose otp.Purpose
}

// captureSender records every delivered code.
type captureSender struct {
	ch   chan sentCode
	fail error
}

func newCaptureSender() *captureSender {
	return &captureSender{ch: make(chan sentCode, 16)}
}

func (c *captureSender) SendOTP(_ context.Context, address, code string, purpose otp.Purpose) error {
	if c.fail != nil {
		return c.fail
	}
	c.ch <- sentCode{address: address, code: code, purpose: purpose}
	return nil
}

func (c *captureSender) next(t *testing.T) sentCode {
	t.Helper()
	select {
	case s := <-c.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for otp delivery")
		return sentCode{}
	}
}

func (c *captureSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case s := <-c.ch:
		t.Fatalf("unexpected delivery to %s (%s)", s.address, s.purpose)
	case <-time.After(100 * time.Millisecond):
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.BcryptCost = 4
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	sender *captureSender
	mr     *miniredis.Miniredis
}

func newTestEnv(t testing.TB, cfg Config) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{store: newFakeStore(), sender: newCaptureSender(), mr: mr}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.store).
		WithNotificationSender(env.sender).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) signUp(t testing.TB, email, password string) *AuthResult {
	t.Helper()
	res, err := env.engine.SignUpEmail(context.Background(), SignUpInput{
		Email:    email,
		Password: password,
		Name:     strings.Split(email, "@")[0],
	})
	if err != nil {
		t.Fatalf("SignUpEmail(%s) failed: %v", email, err)
	}
	return res
}

func mustErrIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
