package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authgate/internal"
	"github.com/google/uuid"
)

var (
	// ErrNotFound means no live session exists for the token.
	ErrNotFound = errors.New("session not found")
	// ErrDurableUnavailable wraps failures of the system of record.
	ErrDurableUnavailable = errors.New("session store unavailable")
)

// Durable is the system of record for sessions. GetSession must return
// ErrNotFound for unknown tokens and populate Session.User.
type Durable interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	ExtendSession(ctx context.Context, token string, expiresAt, updatedAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	ListUserSessionTokens(ctx context.Context, userID string) ([]string, error)
	DeleteUserSessions(ctx context.Context, userID string) error
}

// Config tunes session lifetime and caching.
type Config struct {
	// ExpiresIn is the lifetime of a new session.
	ExpiresIn time.Duration
	// UpdateAge is how stale UpdatedAt may get before a read slides the
	// expiry forward. Zero disables sliding.
	UpdateAge time.Duration
	// CacheTTL caps how long a copy lives in the cache tier.
	CacheTTL time.Duration
}

// DefaultConfig returns a 7 day lifetime refreshed daily, cached for 300s.
func DefaultConfig() Config {
	return Config{
		ExpiresIn: 7 * 24 * time.Hour,
		UpdateAge: 24 * time.Hour,
		CacheTTL:  300 * time.Second,
	}
}

// Metadata describes the client a session is issued to.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Hooks observe cache behavior. Nil fields are skipped.
type Hooks struct {
	CacheHit  func()
	CacheMiss func()
}

// Manager creates, resolves and revokes sessions across both tiers.
type Manager struct {
	durable Durable
	cache   *Cache
	config  Config
	logger  *slog.Logger
	hooks   Hooks
	now     func() time.Time
}

// NewManager wires the two tiers. cache may be nil, in which case every
// read goes to the durable store.
func NewManager(durable Durable, cache *Cache, cfg Config, logger *slog.Logger) (*Manager, error) {
	if durable == nil {
		return nil, errors.New("session: durable store is required")
	}
	if cfg.ExpiresIn <= 0 {
		return nil, errors.New("session: ExpiresIn must be > 0")
	}
	if cfg.CacheTTL < 0 || cfg.UpdateAge < 0 {
		return nil, errors.New("session: CacheTTL and UpdateAge must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		durable: durable,
		cache:   cache,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// SetHooks installs cache observers.
func (m *Manager) SetHooks(h Hooks) { m.hooks = h }

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Config returns the active configuration.
func (m *Manager) Config() Config { return m.config }

// Create issues a session for user. The durable write must succeed; the
// cache write is best effort.
func (m *Manager) Create(ctx context.Context, user Identity, meta Metadata) (*Session, error) {
	token, err := internal.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("session: generate token: %w", err)
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.config.ExpiresIn),
		User:      user,
	}

	if err := m.durable.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	m.writeCache(ctx, s, now)
	return s, nil
}

// Get resolves token. Expired or unknown tokens yield ErrNotFound.
func (m *Manager) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	now := m.now()

	if m.cache != nil {
		s, err := m.cache.Get(ctx, token)
		switch {
		case err == nil && !s.Expired(now):
			m.hit()
			return s, nil
		case err == nil:
			m.dropCache(ctx, s)
		case !errors.Is(err, ErrCacheMiss):
			m.logger.Warn("session cache read failed", slog.String("error", err.Error()))
		}
		m.miss()
	}

	s, err := m.durable.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}

	if s.Expired(now) {
		if err := m.durable.DeleteSession(ctx, token); err != nil {
			m.logger.Warn("expired session cleanup failed", slog.String("error", err.Error()))
		}
		return nil, ErrNotFound
	}

	if m.config.UpdateAge > 0 && now.Sub(s.UpdatedAt) >= m.config.UpdateAge {
		expiresAt := now.Add(m.config.ExpiresIn)
		if err := m.durable.ExtendSession(ctx, token, expiresAt, now); err != nil {
			m.logger.Warn("session refresh failed", slog.String("error", err.Error()))
		} else {
			s.ExpiresAt = expiresAt
			s.UpdatedAt = now
		}
	}

	m.writeCache(ctx, s, now)
	return s, nil
}

// Invalidate removes token from both tiers. Both deletes are attempted
// even if the first fails.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	var userID string
	if m.cache != nil {
		if s, err := m.cache.Get(ctx, token); err == nil {
			userID = s.UserID
		}
	}

	var errs []error
	if err := m.durable.DeleteSession(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
		errs = append(errs, fmt.Errorf("%w: %v", ErrDurableUnavailable, err))
	}
	if m.cache != nil {
		if err := m.cache.Delete(ctx, token, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateUser removes every session of userID from both tiers.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) error {
	var errs []error

	tokens, err := m.durable.ListUserSessionTokens(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrDurableUnavailable, err))
	}
	if err := m.durable.DeleteUserSessions(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrDurableUnavailable, err))
	}

	if m.cache != nil {
		for _, token := range tokens {
			if err := m.cache.Delete(ctx, token, userID); err != nil {
				errs = append(errs, err)
			}
		}
		if err := m.cache.DeleteUser(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh rewrites the cached copy of token from the durable store, for
// callers that changed data carried in Session.User.
func (m *Manager) Refresh(ctx context.Context, token string) error {
	if m.cache == nil {
		return nil
	}
	s, err := m.durable.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	m.writeCache(ctx, s, m.now())
	return nil
}

// RefreshUser rewrites the cached copies of every session of userID.
func (m *Manager) RefreshUser(ctx context.Context, userID string) error {
	if m.cache == nil {
		return nil
	}
	tokens, err := m.durable.ListUserSessionTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	for _, token := range tokens {
		if err := m.Refresh(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) writeCache(ctx context.Context, s *Session, now time.Time) {
	if m.cache == nil {
		return
	}
	ttl := min(m.config.CacheTTL, s.Remaining(now))
	if err := m.cache.Set(ctx, s, ttl); err != nil {
		m.logger.Warn("session cache write failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) dropCache(ctx context.Context, s *Session) {
	if err := m.cache.Delete(ctx, s.Token, s.UserID); err != nil {
		m.logger.Warn("session cache delete failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) hit() {
	if m.hooks.CacheHit != nil {
		m.hooks.CacheHit()
	}
}

func (m *Manager) miss() {
	if m.hooks.CacheMiss != nil {
		m.hooks.CacheMiss()
	}
}
