// Package gateway defines the backend contract consumed by the session
// controller. Implementations normalize their transport's response shapes
// into these types at the boundary; the controller never inspects raw
// payloads.
package gateway

import (
	"context"

	"github.com/avkuzmin/contact-admin/internal/model"
)

// LoginKind discriminates the polymorphic login outcome.
type LoginKind int

const (
	// LoginToken: the backend issued a usable token immediately.
	LoginToken LoginKind = iota
	// LoginChallenge: one or more second factors are required.
	LoginChallenge
)

// LoginResult is the tagged union produced by Login. Exactly one of Token
// or Challenge is populated, selected by Kind.
type LoginResult struct {
	Kind      LoginKind
	Token     string
	Challenge *model.Challenge
}

// VerifyResult is the outcome of a successful OTP verification. Token is
// empty for registration-stage verification (no session is produced).
type VerifyResult struct {
	Token string
	User  *model.Profile // present when the backend returns the profile alongside the token
}

// Gateway is the uniform backend boundary. Every operation returns either a
// value or a coded error (errs.Error wrapping a category sentinel); raw
// transport failures surface as errs.ErrTransport.
type Gateway interface {
	// Register creates an account and returns its opaque id. Never
	// authenticates.
	Register(ctx context.Context, reg model.Registration) (string, error)

	// Login performs first-factor password authentication.
	Login(ctx context.Context, email, password string) (LoginResult, error)

	// DispatchOtp sends a one-time code to the contact over the medium.
	DispatchOtp(ctx context.Context, medium model.OtpMedium, contact string, purpose model.OtpPurpose) (model.DispatchAck, error)

	// VerifyOtp checks a submitted code for (purpose, contact).
	VerifyOtp(ctx context.Context, purpose model.OtpPurpose, contact, code string) (VerifyResult, error)

	// ResendOtp re-dispatches a code for an identifier.
	ResendOtp(ctx context.Context, identifier string, purpose model.OtpPurpose) error

	// CurrentUser resolves the profile for a bearer token. A rejected token
	// surfaces as errs.ErrSessionExpired.
	CurrentUser(ctx context.Context, bearer string) (model.Profile, error)

	// RequestPasswordReset starts an OTP-backed password reset.
	RequestPasswordReset(ctx context.Context, identifier string) error

	// ResetPassword completes a reset with the code delivered out of band.
	ResetPassword(ctx context.Context, identifier, code, newPassword string) error
}
