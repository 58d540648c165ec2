package session

import "time"

// Identity is the slice of the user record carried with a session so a
// cache hit can answer get-session without touching the user table.
type Identity struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
}

// Session is a resolved authentication session.
//
// Token is the bearer secret presented by the client. It is never
// written to the cache tier; cache keys use its SHA-256 digest.
type Session struct {
	ID        string
	Token     string
	UserID    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time

	User Identity
}

// Expired reports whether now is at or past ExpiresAt.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining is the lifetime left at now, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
