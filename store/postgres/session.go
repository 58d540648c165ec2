package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/session"
)

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	query :=
		`INSERT INTO session (id, token, user_id, ip_address, user_agent, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.Token, sess.UserID,
		nullString(sess.IPAddress), nullString(sess.UserAgent),
		sess.ExpiresAt.UTC(), sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetSession reads the session joined with its user.
func (s *Store) GetSession(ctx context.Context, token string) (*session.Session, error) {
	query :=
		`SELECT s.id, s.user_id, s.ip_address, s.user_agent, s.expires_at, s.created_at, s.updated_at,
		        u.email, u.name, u.email_verified
		 FROM session s
		 JOIN "user" u ON u.id = s.user_id
		 WHERE s.token = $1`

	var (
		sess   session.Session
		ip, ua sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&sess.ID, &sess.UserID, &ip, &ua, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.User.Email, &sess.User.Name, &sess.User.EmailVerified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	sess.Token = token
	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	sess.User.ID = sess.UserID
	return &sess, nil
}

func (s *Store) ExtendSession(ctx context.Context, token string, expiresAt, updatedAt time.Time) error {
	query := `UPDATE session SET expires_at = $2, updated_at = $3 WHERE token = $1`

	res, err := s.db.ExecContext(ctx, query, token, expiresAt.UTC(), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE token = $1`, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) ListUserSessionTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM session WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
