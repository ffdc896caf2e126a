package postgres

import (
	"context"
	"errors"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, first_name, last_name, email, phone, pwd_hash, salt, email_verified, phone_verified, mfa_enabled, roles, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, first_name, last_name, email, phone, pwd_hash, salt, email_verified, phone_verified, mfa_enabled, roles)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Pool.Exec(ctx, q,
		u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.PwdHash, u.Salt,
		u.EmailVerified, u.PhoneVerified, u.MFAEnabled, u.Roles)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, email))
}

// GetByContact selects a user by email or phone.
func (r *UserRepo) GetByContact(ctx context.Context, contact string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1 OR phone=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, contact))
}

// MarkContactVerified flips the verified flag for one channel.
func (r *UserRepo) MarkContactVerified(ctx context.Context, id uuid.UUID, medium model.OtpMedium) error {
	q := `UPDATE users SET email_verified = TRUE WHERE id=$1`
	if medium == model.MediumPhone {
		q = `UPDATE users SET phone_verified = TRUE WHERE id=$1`
	}
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetPassword replaces the password hash and salt.
func (r *UserRepo) SetPassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	const q = `UPDATE users SET pwd_hash=$2, salt=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanOne(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.PwdHash, &u.Salt,
		&u.EmailVerified, &u.PhoneVerified, &u.MFAEnabled, &u.Roles, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &u, nil
}
