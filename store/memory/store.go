// Package memory is an in-process CredentialStore and OTP challenge store.
// It backs tests, the load generator and the runnable example; state is
// lost on exit.
package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/session"
	"github.com/google/uuid"
)

type challengeKey struct {
	purpose otp.Purpose
	address string
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	users      map[string]authgate.User
	byEmail    map[string]string
	hashes     map[string]string
	sessions   map[string]session.Session
	challenges map[challengeKey]otp.Challenge
	now        func() time.Time
}

var (
	_ authgate.CredentialStore = (*Store)(nil)
	_ otp.Store                = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[string]authgate.User),
		byEmail:    make(map[string]string),
		hashes:     make(map[string]string),
		sessions:   make(map[string]session.Session),
		challenges: make(map[challengeKey]otp.Challenge),
		now:        time.Now,
	}
}

func (s *Store) CreateUser(_ context.Context, in authgate.CreateUserInput) (*authgate.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[in.Email]; ok {
		return nil, authgate.ErrUserExists
	}
	now := s.now().UTC()
	u := authgate.User{
		ID:            uuid.NewString(),
		Email:         in.Email,
		Name:          in.Name,
		Image:         in.Image,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	if in.PasswordHash != "" {
		s.hashes[u.ID] = in.PasswordHash
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*authgate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (*authgate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) MarkEmailVerified(_ context.Context, userID string) (*authgate.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, authgate.ErrUserNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = s.now().UTC()
	s.users[userID] = u
	return &u, nil
}

func (s *Store) GetPasswordHash(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hashes[userID]
	if !ok {
		return "", authgate.ErrCredentialNotFound
	}
	return h, nil
}

// SetPasswordHash creates or replaces the user's credential.
func (s *Store) SetPasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return authgate.ErrUserNotFound
	}
	s.hashes[userID] = hash
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.Token] = *sess
	return nil
}

// GetSession joins the session with the current user row, so identity
// changes show up on the next durable read.
func (s *Store) GetSession(_ context.Context, token string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return nil, session.ErrNotFound
	}
	sess.User = session.Identity{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
	}
	return &sess, nil
}

func (s *Store) ExtendSession(_ context.Context, token string, expiresAt, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return session.ErrNotFound
	}
	sess.ExpiresAt = expiresAt
	sess.UpdatedAt = updatedAt
	s.sessions[token] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *Store) ListUserSessionTokens(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []string
	for tok, sess := range s.sessions {
		if sess.UserID == userID {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tok, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, tok)
		}
	}
	return nil
}

// Save replaces any challenge for the same purpose and address.
func (s *Store) Save(_ context.Context, c *otp.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey{c.Purpose, c.Address}] = *c
	return nil
}

// Consume follows the otp.Store contract.
func (s *Store) Consume(_ context.Context, address string, purpose otp.Purpose, codeHash [32]byte, maxAttempts int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey{purpose, address}
	c, ok := s.challenges[key]
	if !ok {
		return otp.ErrNotFound
	}
	if c.Expired(now) {
		delete(s.challenges, key)
		return otp.ErrExpired
	}
	if subtle.ConstantTimeCompare(c.CodeHash[:], codeHash[:]) != 1 {
		c.Attempts++
		if maxAttempts > 0 && c.Attempts >= maxAttempts {
			delete(s.challenges, key)
			return otp.ErrAttemptsExceeded
		}
		s.challenges[key] = c
		return otp.ErrMismatch
	}
	delete(s.challenges, key)
	return nil
}

func (s *Store) Delete(_ context.Context, address string, purpose otp.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, challengeKey{purpose, address})
	return nil
}
