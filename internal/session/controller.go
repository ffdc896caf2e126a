// Package session implements the session/auth controller: the single owner
// of the authenticated-user lifecycle. Pages call into it and react to its
// state; the only durable side effect is the token store slot.
package session

import (
	"context"
	"net/mail"
	"strings"
	"sync"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/gateway"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/avkuzmin/contact-admin/internal/token"
	"github.com/avkuzmin/contact-admin/internal/tokenstore"
	"go.uber.org/zap"
)

// Controller mediates all identity transitions. It is constructed once at
// application start and passed by reference to whatever needs it; there is
// no ambient lookup.
type Controller struct {
	gw    gateway.Gateway
	store tokenstore.Store
	log   *zap.Logger

	mu      sync.Mutex
	sess    *model.Session
	loading bool
}

// Option configures the controller.
type Option func(*Controller)

// WithLogger enables diagnostic logging (development builds; the default is
// a nop logger so nothing backend-internal is ever logged in production).
func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = l } }

// New constructs a controller. It starts in the loading state; callers must
// treat Loading as a gate until Restore has run.
func New(gw gateway.Gateway, store tokenstore.Store, opts ...Option) *Controller {
	c := &Controller{gw: gw, store: store, log: zap.NewNop(), loading: true}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns the current session, or nil when anonymous.
func (c *Controller) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Authenticated reports whether a session is held.
func (c *Controller) Authenticated() bool { return c.Session() != nil }

// Loading reports whether Restore has not yet completed.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Restore runs once at application start. An empty store resolves to
// anonymous immediately; a stored token is validated against the backend's
// current-user lookup. Failure of any kind is absorbed: the bad token is
// purged and the application starts anonymous. Restore never returns an
// error.
func (c *Controller) Restore(ctx context.Context) {
	defer c.setLoading(false)

	tok, err := c.store.Load()
	if err != nil || tok == "" {
		if err != nil {
			c.log.Debug("token store read failed", zap.Error(err))
			_ = c.store.Clear()
		}
		return
	}

	profile, err := c.gw.CurrentUser(ctx, tok)
	if err != nil {
		c.log.Debug("session restore rejected", zap.Error(err))
		_ = c.store.Clear()
		c.setSession(nil)
		return
	}
	c.setSession(profile.Session())
}

// Outcome is the result of a successful first-factor login: either an
// immediate session or a pending verification challenge, never both.
type Outcome struct {
	Session   *model.Session
	Challenge *model.Challenge
}

// Authenticated reports whether the login completed without a challenge.
func (o Outcome) Authenticated() bool { return o.Session != nil }

// LoginWithPassword performs first-factor authentication. Three backend
// variants are normalized by the gateway into a tagged result:
//
//   - direct token: decode, hold the session, persist the token;
//   - challenge: dispatch a code for every required channel that has none
//     in flight, then hand the challenge to the caller (no token, no
//     session yet);
//   - rejection: surfaces as ErrAuthenticationFailed.
//
// The controller owns the post-password OTP dispatch; pages never issue it.
func (c *Controller) LoginWithPassword(ctx context.Context, email, password string) (Outcome, error) {
	if err := validEmail(email); err != nil {
		return Outcome{}, err
	}
	if password == "" {
		return Outcome{}, errs.E(errs.ErrValidation, "VALIDATION_001", "password is required")
	}

	res, err := c.gw.Login(ctx, email, password)
	if err != nil {
		return Outcome{}, err
	}

	switch res.Kind {
	case gateway.LoginToken:
		sess, err := c.adopt(res.Token, nil)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Session: sess}, nil

	case gateway.LoginChallenge:
		ch := res.Challenge
		if !ch.Valid() {
			return Outcome{}, errs.E(errs.ErrTransport, "DECODE", "challenge without required channels")
		}
		if err := c.dispatchPending(ctx, ch); err != nil {
			return Outcome{}, err
		}
		return Outcome{Challenge: ch}, nil

	default:
		return Outcome{}, errs.E(errs.ErrTransport, "DECODE", "unknown login result")
	}
}

// dispatchPending sends a code for each required channel that has none in
// flight, marking it sent. Aborts on the first dispatch failure so the
// caller can retry the whole login.
func (c *Controller) dispatchPending(ctx context.Context, ch *model.Challenge) error {
	purpose := purposeFor(ch.Stage)
	for _, chn := range []*model.Channel{&ch.Email, &ch.Phone} {
		if !chn.Required || chn.Sent {
			continue
		}
		if _, err := c.gw.DispatchOtp(ctx, model.MediumFor(chn.Contact), chn.Contact, purpose); err != nil {
			return err
		}
		chn.Sent = true
	}
	return nil
}

// LoginWithOtp starts a passwordless login: dispatch a code to the contact.
// When medium is empty it is inferred from the contact ("@" means email).
func (c *Controller) LoginWithOtp(ctx context.Context, contact string, medium model.OtpMedium) (model.DispatchAck, error) {
	if contact == "" {
		return model.DispatchAck{}, errs.E(errs.ErrValidation, "VALIDATION_001", "email or phone number is required")
	}
	if medium == "" {
		medium = model.MediumFor(contact)
	}
	return c.gw.DispatchOtp(ctx, medium, contact, model.PurposeLogin)
}

// Codes carries one submitted code per challenge channel. Non-digit
// characters are stripped before submission.
type Codes struct {
	Email string
	Phone string
}

// VerifyOtp verifies the outstanding challenge channel by channel, strictly
// sequentially: a failure aborts before the next channel is attempted, and
// the challenge is left intact (channels that already verified keep their
// mark) so the caller retries only what failed.
//
// On full success: stage mfa yields an authenticated session with the token
// persisted; stage verify yields (nil, nil) and the caller proceeds to
// first-factor login.
func (c *Controller) VerifyOtp(ctx context.Context, ch *model.Challenge, codes Codes) (*model.Session, error) {
	if !ch.Valid() {
		return nil, errs.E(errs.ErrValidation, "VALIDATION_001", "no verification is pending")
	}
	purpose := purposeFor(ch.Stage)

	var last gateway.VerifyResult
	for _, sub := range []struct {
		chn  *model.Channel
		code string
	}{
		{&ch.Email, codes.Email},
		{&ch.Phone, codes.Phone},
	} {
		if !sub.chn.Required || sub.chn.Verified {
			continue
		}
		code := sanitizeCode(sub.code)
		if len(code) != model.OtpCodeLength {
			return nil, errs.E(errs.ErrValidation, "VALIDATION_001", "verification code must be 6 digits")
		}
		res, err := c.gw.VerifyOtp(ctx, purpose, sub.chn.Contact, code)
		if err != nil {
			return nil, err
		}
		sub.chn.Verified = true
		last = res
	}

	if ch.Stage == model.StageVerify {
		// Contact ownership proven; no token is issued at this stage.
		return nil, nil
	}

	if last.Token == "" {
		return nil, errs.E(errs.ErrTransport, "DECODE", "verification response carried no token")
	}
	return c.adopt(last.Token, last.User)
}

// ResendOtp re-dispatches a code. The 60-second cooldown is a caller
// concern; the controller only issues the call.
func (c *Controller) ResendOtp(ctx context.Context, contact string, purpose model.OtpPurpose) error {
	if contact == "" {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "contact is required")
	}
	return c.gw.ResendOtp(ctx, contact, purpose)
}

// Register creates an account and returns its opaque id. Registration and
// authentication are always separate steps: no session is created here.
func (c *Controller) Register(ctx context.Context, reg model.Registration) (string, error) {
	if err := validEmail(reg.Email); err != nil {
		return "", err
	}
	if reg.FirstName == "" || reg.LastName == "" {
		return "", errs.E(errs.ErrValidation, "VALIDATION_001", "first and last name are required")
	}
	if reg.Password == "" {
		return "", errs.E(errs.ErrValidation, "VALIDATION_001", "password is required")
	}
	return c.gw.Register(ctx, reg)
}

// Logout clears the token slot and drops the session. Unconditional,
// synchronous, idempotent; it cannot fail.
func (c *Controller) Logout() {
	_ = c.store.Clear()
	c.setSession(nil)
	c.setLoading(false)
}

// RequestPasswordReset starts an OTP-backed password reset.
func (c *Controller) RequestPasswordReset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "email or phone number is required")
	}
	return c.gw.RequestPasswordReset(ctx, identifier)
}

// ResetPassword completes a reset with the delivered code.
func (c *Controller) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	code = sanitizeCode(code)
	if len(code) != model.OtpCodeLength {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "verification code must be 6 digits")
	}
	if newPassword == "" {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "new password is required")
	}
	return c.gw.ResetPassword(ctx, identifier, code, newPassword)
}

// adopt turns a token (and optional profile) into the held session. The
// in-memory session is installed before the persistent write so a reload
// can never restore a token that never produced a session.
func (c *Controller) adopt(raw string, profile *model.Profile) (*model.Session, error) {
	var sess *model.Session
	if profile != nil {
		sess = profile.Session()
	} else {
		p, err := token.Decode(raw)
		if err != nil {
			return nil, err
		}
		sess = p.Session()
	}
	c.setSession(sess)
	if err := c.store.Save(raw); err != nil {
		c.log.Debug("token persist failed", zap.Error(err))
	}
	return sess, nil
}

func (c *Controller) setSession(s *model.Session) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func purposeFor(stage model.ChallengeStage) model.OtpPurpose {
	if stage == model.StageVerify {
		return model.PurposeRegistration
	}
	return model.PurposeLogin
}

// sanitizeCode strips everything but digits, mirroring the input handling
// at the form edge.
func sanitizeCode(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func validEmail(email string) error {
	if email == "" {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errs.E(errs.ErrValidation, "VALIDATION_001", "invalid email address")
	}
	return nil
}
