package postgres

import (
	"context"
	"errors"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/gofrs/uuid/v5"
)

// OtpRepo implements OtpRepository using PostgreSQL.
type OtpRepo struct{ db *DB }

// NewOtpRepo constructs an OTP code repository.
func NewOtpRepo(db *DB) *OtpRepo { return &OtpRepo{db: db} }

// Upsert stores a fresh code for (contact, purpose), replacing any previous
// one and resetting the attempt counter.
func (r *OtpRepo) Upsert(ctx context.Context, c *model.OtpCode) error {
	const q = `
INSERT INTO otp_codes (id, contact, medium, purpose, code, attempts, expires_at)
VALUES ($1, $2, $3, $4, $5, 0, $6)
ON CONFLICT (contact, purpose) DO UPDATE
SET id=EXCLUDED.id, medium=EXCLUDED.medium, code=EXCLUDED.code, attempts=0, expires_at=EXCLUDED.expires_at, created_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.Contact, string(c.Medium), string(c.Purpose), c.Code, c.ExpiresAt)
	return err
}

// Get loads the live code for (contact, purpose).
func (r *OtpRepo) Get(ctx context.Context, contact string, purpose model.OtpPurpose) (*model.OtpCode, error) {
	const q = `
SELECT id, contact, medium, purpose, code, attempts, expires_at, created_at
FROM otp_codes WHERE contact=$1 AND purpose=$2`
	row := r.db.Pool.QueryRow(ctx, q, contact, string(purpose))
	var c model.OtpCode
	var medium, prp string
	if err := row.Scan(&c.ID, &c.Contact, &medium, &prp, &c.Code, &c.Attempts, &c.ExpiresAt, &c.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	c.Medium = model.OtpMedium(medium)
	c.Purpose = model.OtpPurpose(prp)
	return &c, nil
}

// Bump increments the attempt counter and returns the new value.
func (r *OtpRepo) Bump(ctx context.Context, id uuid.UUID) (int, error) {
	const q = `UPDATE otp_codes SET attempts = attempts + 1 WHERE id=$1 RETURNING attempts`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&n); err != nil {
		return 0, errs.ErrNotFound
	}
	return n, nil
}

// Delete consumes a code.
func (r *OtpRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM otp_codes WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}
