// Package service contains the server-side application logic for accounts,
// login and one-time codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/avkuzmin/contact-admin/internal/crypto"
	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/limiter"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/avkuzmin/contact-admin/internal/repository"
	"github.com/avkuzmin/contact-admin/internal/sender"
	"github.com/avkuzmin/contact-admin/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// LoginOutcome is the service-level login result: either a token or a
// pending challenge, never both.
type LoginOutcome struct {
	Token     string
	Challenge *model.Challenge
}

// VerifyOutcome is the result of a successful code verification. Token is
// empty for registration-stage verification.
type VerifyOutcome struct {
	Token string
	User  *model.Profile
}

// AuthService defines authentication operations exposed over the API and
// consumed directly by the in-process gateway.
type AuthService interface {
	// Register creates an account and dispatches verification codes to its
	// contact channels. Never authenticates.
	Register(ctx context.Context, reg model.Registration) (string, error)
	// LoginWithIP applies rate limiting and performs first-factor
	// authentication.
	LoginWithIP(ctx context.Context, email, password, ip string) (LoginOutcome, error)
	// DispatchOtp issues and delivers a one-time code.
	DispatchOtp(ctx context.Context, medium model.OtpMedium, contact string, purpose model.OtpPurpose) error
	// VerifyOtp checks a submitted code for (purpose, contact).
	VerifyOtp(ctx context.Context, purpose model.OtpPurpose, contact, code string) (VerifyOutcome, error)
	// ResendOtp re-issues and re-delivers a code.
	ResendOtp(ctx context.Context, identifier string, purpose model.OtpPurpose) error
	// CurrentUser resolves the fresh profile behind a bearer token.
	CurrentUser(ctx context.Context, bearer string) (model.Profile, error)
	// RequestPasswordReset issues a reset code for the identifier.
	RequestPasswordReset(ctx context.Context, identifier string) error
	// ResetPassword completes a reset with the delivered code.
	ResetPassword(ctx context.Context, identifier, code, newPassword string) error
}

// Config carries the tunables for AuthServiceImpl.
type Config struct {
	SignKey        []byte
	AccessTTL      time.Duration
	OtpTTL         time.Duration
	MaxOtpAttempts int
}

type AuthServiceImpl struct {
	users repository.UserRepository
	otps  repository.OtpRepository
	out   sender.Sender
	lim   limiter.Limiter
	cfg   Config
	log   *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, otps repository.OtpRepository, out sender.Sender, lim limiter.Limiter, cfg Config, log *zap.Logger) *AuthServiceImpl {
	if cfg.OtpTTL == 0 {
		cfg.OtpTTL = 5 * time.Minute
	}
	if cfg.MaxOtpAttempts == 0 {
		cfg.MaxOtpAttempts = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, otps: otps, out: out, lim: lim, cfg: cfg, log: log}
}

// Register creates the account and kicks off contact verification for each
// provided channel. The email doubles as the username.
func (s *AuthServiceImpl) Register(ctx context.Context, reg model.Registration) (string, error) {
	if reg.Email == "" || reg.Password == "" || reg.FirstName == "" || reg.LastName == "" {
		return "", errs.E(errs.ErrValidation, "VALIDATION_001", "missing required fields")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return "", err
	}

	u := &model.User{
		ID:         uid,
		FirstName:  reg.FirstName,
		LastName:   reg.LastName,
		Email:      strings.ToLower(reg.Email),
		Phone:      reg.Phone,
		PwdHash:    pkgcrypto.HashPassword([]byte(reg.Password), salt),
		Salt:       salt,
		MFAEnabled: true,
		Roles:      []string{},
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return "", errs.E(errs.ErrRegistrationFailed, "USER_002", "email or phone already registered")
		}
		return "", err
	}

	// Verification codes go out immediately; a delivery failure does not
	// undo the registration, the client can resend.
	if err := s.DispatchOtp(ctx, model.MediumEmail, u.Email, model.PurposeRegistration); err != nil {
		s.log.Warn("registration email otp dispatch failed", zap.Error(err))
	}
	if u.Phone != "" {
		if err := s.DispatchOtp(ctx, model.MediumPhone, u.Phone, model.PurposeRegistration); err != nil {
			s.log.Warn("registration phone otp dispatch failed", zap.Error(err))
		}
	}
	return uid.String(), nil
}

// LoginWithIP authenticates with rate limiting by (email, ip). The outcome
// depends on account state: unverified contacts produce a verify-stage
// challenge, MFA-enabled accounts an mfa-stage challenge, and only accounts
// with MFA disabled get a token straight away.
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (LoginOutcome, error) {
	email = strings.ToLower(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return LoginOutcome{}, err
	}
	if !allowed {
		return LoginOutcome{}, errLocked()
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return LoginOutcome{}, errLocked()
		}
		// lookup errors are masked: do not reveal whether the account exists
		return LoginOutcome{}, errs.E(errs.ErrAuthenticationFailed, "AUTH_001", "invalid email or password")
	}

	_ = s.lim.Success(ctx, email, ipHash)

	if ch := s.verifyStageChallenge(ctx, u); ch != nil {
		return LoginOutcome{Challenge: ch}, nil
	}

	if u.MFAEnabled {
		// Second factor over email; the client drives the dispatch.
		return LoginOutcome{Challenge: &model.Challenge{
			Stage: model.StageMFA,
			Email: model.Channel{Required: true, Contact: u.Email},
		}}, nil
	}

	tok, _, err := token.Mint(u.Profile(), s.cfg.SignKey, s.cfg.AccessTTL)
	if err != nil {
		return LoginOutcome{}, err
	}
	return LoginOutcome{Token: tok}, nil
}

// verifyStageChallenge returns a verify-stage challenge covering every
// unverified contact channel, or nil when the account is fully verified.
func (s *AuthServiceImpl) verifyStageChallenge(ctx context.Context, u *model.User) *model.Challenge {
	ch := &model.Challenge{Stage: model.StageVerify}
	if !u.EmailVerified {
		ch.Email = model.Channel{Required: true, Contact: u.Email, Sent: s.hasLiveCode(ctx, u.Email, model.PurposeRegistration)}
	}
	if u.Phone != "" && !u.PhoneVerified {
		ch.Phone = model.Channel{Required: true, Contact: u.Phone, Sent: s.hasLiveCode(ctx, u.Phone, model.PurposeRegistration)}
	}
	if !ch.Valid() {
		return nil
	}
	return ch
}

func (s *AuthServiceImpl) hasLiveCode(ctx context.Context, contact string, purpose model.OtpPurpose) bool {
	c, err := s.otps.Get(ctx, contact, purpose)
	return err == nil && c.ExpiresAt.After(time.Now())
}

// DispatchOtp issues a fresh 6-digit code and hands it to the outbound sender.
func (s *AuthServiceImpl) DispatchOtp(ctx context.Context, medium model.OtpMedium, contact string, purpose model.OtpPurpose) error {
	if contact == "" {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "contact is required")
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	rec := &model.OtpCode{
		ID:        id,
		Contact:   contact,
		Medium:    medium,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: time.Now().Add(s.cfg.OtpTTL),
	}
	if err := s.otps.Upsert(ctx, rec); err != nil {
		return err
	}
	if err := s.out.Send(ctx, medium, contact, code, purpose); err != nil {
		return errs.E(errs.ErrOtpDispatchFailed, "OTP_SEND_FAILED", "failed to send the code")
	}
	return nil
}

// VerifyOtp checks the submitted code. A match consumes the code; for the
// login purpose it mints a token, for registration it marks the contact
// channel verified.
func (s *AuthServiceImpl) VerifyOtp(ctx context.Context, purpose model.OtpPurpose, contact, code string) (VerifyOutcome, error) {
	rec, err := s.checkCode(ctx, contact, purpose, code)
	if err != nil {
		return VerifyOutcome{}, err
	}
	_ = s.otps.Delete(ctx, rec.ID)

	u, err := s.users.GetByContact(ctx, contact)
	if err != nil {
		return VerifyOutcome{}, errs.E(errs.ErrNotFound, "USER_001", "user not found")
	}

	switch purpose {
	case model.PurposeRegistration:
		if err := s.users.MarkContactVerified(ctx, u.ID, model.MediumFor(contact)); err != nil {
			return VerifyOutcome{}, err
		}
		return VerifyOutcome{}, nil
	default:
		p := u.Profile()
		tok, _, err := token.Mint(p, s.cfg.SignKey, s.cfg.AccessTTL)
		if err != nil {
			return VerifyOutcome{}, err
		}
		return VerifyOutcome{Token: tok, User: &p}, nil
	}
}

// checkCode validates a live code for (contact, purpose) without consuming
// it; mismatches burn an attempt and the attempt cap invalidates the code.
func (s *AuthServiceImpl) checkCode(ctx context.Context, contact string, purpose model.OtpPurpose, code string) (*model.OtpCode, error) {
	rec, err := s.otps.Get(ctx, contact, purpose)
	if err != nil {
		return nil, errs.E(errs.ErrOtpInvalid, "OTP_001", "invalid verification code")
	}
	if time.Now().After(rec.ExpiresAt) {
		_ = s.otps.Delete(ctx, rec.ID)
		return nil, errs.E(errs.ErrOtpExpired, "OTP_002", "verification code expired")
	}
	if rec.Code != code {
		if n, err := s.otps.Bump(ctx, rec.ID); err == nil && n >= s.cfg.MaxOtpAttempts {
			_ = s.otps.Delete(ctx, rec.ID)
			return nil, errs.E(errs.ErrOtpExpired, "OTP_003", "too many verification attempts")
		}
		return nil, errs.E(errs.ErrOtpInvalid, "OTP_001", "invalid verification code")
	}
	return rec, nil
}

// ResendOtp re-issues a code for whichever channel the identifier matches.
func (s *AuthServiceImpl) ResendOtp(ctx context.Context, identifier string, purpose model.OtpPurpose) error {
	if _, err := s.users.GetByContact(ctx, identifier); err != nil {
		return errs.E(errs.ErrNotFound, "USER_001", "user not found")
	}
	return s.DispatchOtp(ctx, model.MediumFor(identifier), identifier, purpose)
}

// CurrentUser validates the bearer token and returns the fresh profile from
// storage, so verified flags and roles reflect the current account state.
func (s *AuthServiceImpl) CurrentUser(ctx context.Context, bearer string) (model.Profile, error) {
	claims, err := token.Verify(bearer, s.cfg.SignKey)
	if err != nil {
		return model.Profile{}, err
	}
	uid, err := uuid.FromString(claims.ID)
	if err != nil {
		return model.Profile{}, errs.E(errs.ErrSessionExpired, "AUTH_002", "invalid or expired token")
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return model.Profile{}, errs.E(errs.ErrSessionExpired, "AUTH_002", "invalid or expired token")
	}
	return u.Profile(), nil
}

// RequestPasswordReset issues a reset code to the identifier's channel.
func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, identifier string) error {
	if _, err := s.users.GetByContact(ctx, identifier); err != nil {
		// mask account existence: report success either way
		return nil
	}
	return s.DispatchOtp(ctx, model.MediumFor(identifier), identifier, model.PurposeForgotPassword)
}

// ResetPassword completes a reset: the code is consumed and the password
// replaced under a fresh salt.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	if newPassword == "" {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "new password is required")
	}
	rec, err := s.checkCode(ctx, identifier, model.PurposeForgotPassword, code)
	if err != nil {
		return err
	}
	u, err := s.users.GetByContact(ctx, identifier)
	if err != nil {
		return errs.E(errs.ErrNotFound, "USER_001", "user not found")
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, u.ID, pkgcrypto.HashPassword([]byte(newPassword), salt), salt); err != nil {
		return err
	}
	_ = s.otps.Delete(ctx, rec.ID)
	return nil
}

func errLocked() error {
	return errs.E(errs.ErrRateLimited, "AUTH_003", "too many login attempts, try again later")
}

// generateCode returns a uniformly random 6-digit code.
func generateCode() (string, error) {
	b, err := pkgcrypto.RandBytes(4)
	if err != nil {
		return "", err
	}
	n := (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) % 1_000_000
	return fmt.Sprintf("%06d", n), nil
}
