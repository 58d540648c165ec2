// Package postgres is the PostgreSQL system of record: users, password
// credentials, sessions and verification records. It implements
// authgate.CredentialStore and otp.Store on database/sql with the pgx
// driver; the schema ships as embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	providerCredential = "credential"

	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// DBTX is the subset of database/sql used by the queries.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements authgate.CredentialStore and otp.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ authgate.CredentialStore = (*Store)(nil)

// Open connects through the pgx stdlib driver and pings once.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// withTx begins a transaction, runs fn, then commits on success or rolls
// back on error or panic. Panics are rethrown.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const userColumns = `id, name, email, email_verified, image, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*authgate.User, error) {
	var (
		u     authgate.User
		image sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Image = image.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateUser inserts the user and, when a hash is given, its credential
// account in one transaction.
func (s *Store) CreateUser(ctx context.Context, in authgate.CreateUserInput) (*authgate.User, error) {
	now := s.now().UTC()
	u := &authgate.User{
		ID:            uuid.NewString(),
		Email:         in.Email,
		Name:          in.Name,
		Image:         in.Image,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		query :=
			`INSERT INTO "user" (id, name, email, email_verified, image, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, query,
			u.ID, u.Name, u.Email, u.EmailVerified, nullString(u.Image), now, now); err != nil {
			return err
		}

		if in.PasswordHash == "" {
			return nil
		}
		return insertCredential(ctx, tx, u.ID, in.PasswordHash, now)
	})
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return nil, authgate.ErrUserExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func insertCredential(ctx context.Context, db DBTX, userID, hash string, now time.Time) error {
	query :=
		`INSERT INTO account (id, account_id, provider_id, user_id, password, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (provider_id, user_id)
		 DO UPDATE SET password = EXCLUDED.password, updated_at = EXCLUDED.updated_at`
	_, err := db.ExecContext(ctx, query, uuid.NewString(), userID, providerCredential, userID, hash, now, now)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*authgate.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user" WHERE lower(email) = lower($1)`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*authgate.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user" WHERE id = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) (*authgate.User, error) {
	query :=
		`UPDATE "user" SET email_verified = true, updated_at = $2
		 WHERE id = $1
		 RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, userID, s.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	query := `SELECT password FROM account WHERE user_id = $1 AND provider_id = $2`

	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID, providerCredential).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authgate.ErrCredentialNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	if !hash.Valid || hash.String == "" {
		return "", authgate.ErrCredentialNotFound
	}
	return hash.String, nil
}

// SetPasswordHash upserts the credential account of userID.
func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string) error {
	if err := insertCredential(ctx, s.db, userID, hash, s.now().UTC()); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return authgate.ErrUserNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
