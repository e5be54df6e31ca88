package otp

import (
	"context"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
)

type SQLStore struct {
	DB *storage.DB
}

func (s SQLStore) Save(ctx context.Context, email, purpose, code string, expiresAt time.Time) error {
	return s.DB.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM otp_codes WHERE email=? AND purpose=?`, email, purpose); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO otp_codes (email, code, purpose, expires_at) VALUES (?, ?, ?, ?)`,
			email, code, purpose, storage.Millis(expiresAt))
		return err
	})
}

func (s SQLStore) Consume(ctx context.Context, email, purpose, code string, now time.Time) (bool, error) {
	ok := false
	err := s.DB.InTx(ctx, func(tx *storage.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM otp_codes
			 WHERE email=? AND purpose=? AND code=? AND expires_at > ?`,
			email, purpose, code, storage.Millis(now)).Scan(&n)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		// Delete the OTP after successful verification.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM otp_codes WHERE email=? AND purpose=?`, email, purpose); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at <= ?`, storage.Millis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
