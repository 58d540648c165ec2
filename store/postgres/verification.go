package postgres

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/otp"
	"github.com/google/uuid"
)

var _ otp.Store = (*Store)(nil)

// identifier is the verification row key for a challenge.
func identifier(address string, purpose otp.Purpose) string {
	return string(purpose) + ":" + address
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
}

// Save replaces any verification row for the same purpose and address.
func (s *Store) Save(ctx context.Context, c *otp.Challenge) error {
	query :=
		`INSERT INTO verification (id, identifier, value, attempts, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5, $5)
		 ON CONFLICT (identifier)
		 DO UPDATE SET id = EXCLUDED.id, value = EXCLUDED.value, attempts = 0,
		               expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at,
		               updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), identifier(c.Address, c.Purpose), hex.EncodeToString(c.CodeHash[:]),
		c.ExpiresAt.UTC(), c.IssuedAt.UTC())
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Consume locks the row for the duration of the check so concurrent
// verifications of one challenge serialize.
func (s *Store) Consume(ctx context.Context, address string, purpose otp.Purpose, codeHash [32]byte, maxAttempts int, now time.Time) error {
	id := identifier(address, purpose)
	var outcome error

	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		var (
			value     string
			attempts  int
			expiresAt time.Time
		)
		err := tx.QueryRowContext(ctx,
			`SELECT value, attempts, expires_at FROM verification WHERE identifier = $1 FOR UPDATE`, id,
		).Scan(&value, &attempts, &expiresAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome = otp.ErrNotFound
				return nil
			}
			return err
		}

		if !now.Before(expiresAt) {
			outcome = otp.ErrExpired
			return deleteVerification(ctx, tx, id)
		}

		stored, err := hex.DecodeString(value)
		if err == nil && subtle.ConstantTimeCompare(stored, codeHash[:]) == 1 {
			return deleteVerification(ctx, tx, id)
		}

		attempts++
		if maxAttempts > 0 && attempts >= maxAttempts {
			outcome = otp.ErrAttemptsExceeded
			return deleteVerification(ctx, tx, id)
		}
		outcome = otp.ErrMismatch
		_, err = tx.ExecContext(ctx,
			`UPDATE verification SET attempts = $2, updated_at = $3 WHERE identifier = $1`,
			id, attempts, now.UTC())
		return err
	})
	if err != nil {
		return unavailable(err)
	}
	return outcome
}

func deleteVerification(ctx context.Context, db DBTX, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM verification WHERE identifier = $1`, id)
	return err
}

func (s *Store) Delete(ctx context.Context, address string, purpose otp.Purpose) error {
	if err := deleteVerification(ctx, s.db, identifier(address, purpose)); err != nil {
		return unavailable(err)
	}
	return nil
}
