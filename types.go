package authgate

import (
	"context"
	"time"

	"github.com/MrEthical07/authgate/internal/notify"
	"github.com/MrEthical07/authgate/session"
)

// User is a registered account.
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	Image         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *User) identity() session.Identity {
	return session.Identity{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
	}
}

// CreateUserInput describes a new account. PasswordHash is optional; when
// set, the credential is created in the same transaction as the user.
type CreateUserInput struct {
	Email         string
	Name          string
	Image         string
	EmailVerified bool
	PasswordHash  string
}

// CredentialStore is the durable system of record: users, their password
// credentials and their sessions.
//
// Lookups return ErrUserNotFound or ErrCredentialNotFound for absent rows
// and session.ErrNotFound for unknown session tokens. Emails are passed
// already normalized.
type CredentialStore interface {
	session.Durable

	CreateUser(ctx context.Context, input CreateUserInput) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)
	MarkEmailVerified(ctx context.Context, userID string) (*User, error)
	GetPasswordHash(ctx context.Context, userID string) (string, error)
	SetPasswordHash(ctx context.Context, userID, hash string) error
	Ping(ctx context.Context) error
}

// NotificationSender delivers one-time codes out of band, usually by
// email. Calls happen on background workers, never on the request path.
type NotificationSender = notify.Sender

// AuthResult is returned by every operation that issues a session.
type AuthResult struct {
	Token   string
	User    *User
	Session *session.Session
}

// SessionView is a resolved session and its user.
type SessionView struct {
	Session *session.Session
	User    *User
}

func userFromSession(s *session.Session) *User {
	return &User{
		ID:            s.UserID,
		Email:         s.User.Email,
		Name:          s.User.Name,
		EmailVerified: s.User.EmailVerified,
	}
}
