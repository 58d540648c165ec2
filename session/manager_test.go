package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeDurable struct {
	mu       sync.Mutex
	sessions map[string]*Session
	gets     int
	failGet  error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{sessions: map[string]*Session{}}
}

func (f *fakeDurable) CreateSession(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.Token] = &cp
	return nil
}

func (f *fakeDurable) GetSession(_ context.Context, token string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet != nil {
		return nil, f.failGet
	}
	s, ok := f.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeDurable) ExtendSession(_ context.Context, token string, expiresAt, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.ExpiresAt = expiresAt
	s.UpdatedAt = updatedAt
	return nil
}

func (f *fakeDurable) DeleteSession(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeDurable) ListUserSessionTokens(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for token, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, token)
		}
	}
	return out, nil
}

func (f *fakeDurable) DeleteUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, token)
		}
	}
	return nil
}

func (f *fakeDurable) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type managerFixture struct {
	mr      *miniredis.Miniredis
	durable *fakeDurable
	manager *Manager
	now     time.Time
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &managerFixture{mr: mr, durable: newFakeDurable(), now: time.Now()}
	m, err := NewManager(f.durable, NewCache(rdb, "sess"), DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.SetClock(func() time.Time { return f.now })
	f.manager = m
	return f
}

var alice = Identity{ID: "u-1", Email: "alice@example.com", Name: "Alice", EmailVerified: true}

func TestCreateWritesBothTiers(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, err := f.manager.Create(ctx, alice, Metadata{IPAddress: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(s.Token) < 43 {
		t.Fatalf("expected 256-bit base64url token, got %q", s.Token)
	}
	if !s.ExpiresAt.Equal(f.now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", s.ExpiresAt)
	}

	if _, ok := f.durable.sessions[s.Token]; !ok {
		t.Fatal("expected durable record")
	}
	key := "sess:" + TokenDigest(s.Token)
	if !f.mr.Exists(key) {
		t.Fatal("expected cache entry")
	}
	if ttl := f.mr.TTL(key); ttl <= 0 || ttl > 300*time.Second {
		t.Fatalf("expected cache ttl capped at 300s, got %s", ttl)
	}

	raw, _ := f.mr.Get(key)
	if containsString(raw, s.Token) {
		t.Fatal("cache entry must not contain the plaintext token")
	}
}

func TestGetPrefersCache(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	var hits, misses int
	f.manager.SetHooks(Hooks{CacheHit: func() { hits++ }, CacheMiss: func() { misses++ }})

	s, _ := f.manager.Create(ctx, alice, Metadata{})
	got, err := f.manager.Get(ctx, s.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != alice.ID || got.User.Email != alice.Email || !got.User.EmailVerified {
		t.Fatalf("unexpected session %+v", got)
	}
	if f.durable.getCount() != 0 {
		t.Fatal("expected cache hit to skip durable store")
	}
	if hits != 1 || misses != 0 {
		t.Fatalf("expected 1 hit 0 misses, got %d/%d", hits, misses)
	}
}

func TestGetReadThroughAfterCacheEviction(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Create(ctx, alice, Metadata{})
	f.mr.FlushAll()

	got, err := f.manager.Get(ctx, s.Token)
	if err != nil {
		t.Fatalf("Get after flush: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("expected same session, got %+v", got)
	}
	if f.durable.getCount() != 1 {
		t.Fatalf("expected one durable read, got %d", f.durable.getCount())
	}
	if !f.mr.Exists("sess:" + TokenDigest(s.Token)) {
		t.Fatal("expected cache to be repopulated")
	}
}

func TestGetStaleCacheBoundedByTTL(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Create(ctx, alice, Metadata{})
	// Revocation that reaches only the durable tier.
	_ = f.durable.DeleteSession(ctx, s.Token)

	if _, err := f.manager.Get(ctx, s.Token); err != nil {
		t.Fatalf("expected stale cache hit within ttl, got %v", err)
	}

	f.mr.FastForward(301 * time.Second)
	if _, err := f.manager.Get(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cache ttl, got %v", err)
	}
}

func TestGetExpiredSessionIsNeverReturned(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Create(ctx, alice, Metadata{})
	f.now = f.now.Add(7*24*time.Hour + time.Second)

	if _, err := f.manager.Get(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	if _, ok := f.durable.sessions[s.Token]; ok {
		t.Fatal("expected expired durable record to be removed")
	}
}

func TestGetSlidesExpiryAfterUpdateAge(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Create(ctx, alice, Metadata{})
	f.mr.FlushAll()
	f.now = f.now.Add(25 * time.Hour)

	got, err := f.manager.Get(ctx, s.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := f.now.Add(7 * 24 * time.Hour)
	if !got.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry slid to %s, got %s", want, got.ExpiresAt)
	}
	if !f.durable.sessions[s.Token].ExpiresAt.Equal(want) {
		t.Fatal("expected durable expiry to be extended")
	}
}

func TestInvalidateRemovesBothTiers(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	s, _ := f.manager.Create(ctx, alice, Metadata{})
	if err := f.manager.Invalidate(ctx, s.Token); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if f.mr.Exists("sess:" + TokenDigest(s.Token)) {
		t.Fatal("expected cache entry removed")
	}
	if _, err := f.manager.Get(ctx, s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after invalidate, got %v", err)
	}
	if err := f.manager.Invalidate(ctx, s.Token); err != nil {
		t.Fatalf("second Invalidate should be a no-op, got %v", err)
	}
}

func TestInvalidateUser(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	a, _ := f.manager.Create(ctx, alice, Metadata{})
	b, _ := f.manager.Create(ctx, alice, Metadata{})
	other, _ := f.manager.Create(ctx, Identity{ID: "u-2", Email: "bob@example.com"}, Metadata{})

	if err := f.manager.InvalidateUser(ctx, alice.ID); err != nil {
		t.Fatalf("InvalidateUser: %v", err)
	}
	for _, tok := range []string{a.Token, b.Token} {
		if _, err := f.manager.Get(ctx, tok); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected alice session revoked, got %v", err)
		}
	}
	if _, err := f.manager.Get(ctx, other.Token); err != nil {
		t.Fatalf("expected other user session intact, got %v", err)
	}
}

func TestGetDurableFailureIsWrapped(t *testing.T) {
	f := newManagerFixture(t)
	f.durable.failGet = errors.New("connection refused")

	_, err := f.manager.Get(context.Background(), "missing-from-cache")
	if !errors.Is(err, ErrDurableUnavailable) {
		t.Fatalf("expected ErrDurableUnavailable, got %v", err)
	}
}

func TestCreateSurvivesCacheOutage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	durable := newFakeDurable()
	m, err := NewManager(durable, NewCache(rdb, ""), DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	s, err := m.Create(context.Background(), alice, Metadata{})
	if err != nil {
		t.Fatalf("expected create to succeed without cache, got %v", err)
	}
	if _, ok := durable.sessions[s.Token]; !ok {
		t.Fatal("expected durable record")
	}

	// Reads fall through to the durable tier while the cache is down.
	if _, err := m.Get(context.Background(), s.Token); err != nil {
		t.Fatalf("expected durable read-through, got %v", err)
	}
}

func containsString(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
