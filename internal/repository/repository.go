// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides account storage.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email (the username).
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByContact loads a user whose email or phone matches the contact.
	GetByContact(ctx context.Context, contact string) (*model.User, error)
	// MarkContactVerified flips the verified flag for the matching channel.
	MarkContactVerified(ctx context.Context, id uuid.UUID, medium model.OtpMedium) error
	// SetPassword replaces the password hash and salt.
	SetPassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error
}

// OtpRepository stores in-flight one-time codes. At most one live code
// exists per (contact, purpose); issuing a new one replaces it.
type OtpRepository interface {
	// Upsert stores a fresh code for (contact, purpose), replacing any
	// previous one.
	Upsert(ctx context.Context, code *model.OtpCode) error
	// Get loads the live code for (contact, purpose).
	Get(ctx context.Context, contact string, purpose model.OtpPurpose) (*model.OtpCode, error)
	// Bump increments the attempt counter and returns the new value.
	Bump(ctx context.Context, id uuid.UUID) (int, error)
	// Delete consumes a code.
	Delete(ctx context.Context, id uuid.UUID) error
}
