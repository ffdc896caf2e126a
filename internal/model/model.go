// Package model defines domain entities shared by the controller, gateways and services.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// OtpMedium selects the delivery channel for a one-time code.
type OtpMedium string

const (
	MediumEmail OtpMedium = "email"
	MediumPhone OtpMedium = "phone"
)

// MediumFor picks a medium for a contact value: anything with "@" is email.
func MediumFor(contact string) OtpMedium {
	if strings.Contains(contact, "@") {
		return MediumEmail
	}
	return MediumPhone
}

// OtpPurpose distinguishes why a code was issued.
type OtpPurpose string

const (
	PurposeLogin          OtpPurpose = "login"
	PurposeRegistration   OtpPurpose = "registration"
	PurposeForgotPassword OtpPurpose = "forgot_password"
)

// OtpCodeLength is the fixed length of issued codes (digits only).
const OtpCodeLength = 6

// Session is the authenticated identity held in memory. It is replaced
// atomically on every transition and is never mutated field-by-field.
type Session struct {
	UserID        string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	EmailVerified bool
	PhoneVerified bool
	Roles         []string
}

// Profile is the user projection returned by backends.
type Profile struct {
	ID            string   `json:"id"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone,omitempty"`
	EmailVerified bool     `json:"emailVerified"`
	PhoneVerified bool     `json:"phoneVerified"`
	Roles         []string `json:"roles"`
}

// Session converts a profile into an in-memory session.
func (p Profile) Session() *Session {
	roles := append([]string(nil), p.Roles...)
	if roles == nil {
		roles = []string{}
	}
	return &Session{
		UserID:        p.ID,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Email:         p.Email,
		Phone:         p.Phone,
		EmailVerified: p.EmailVerified,
		PhoneVerified: p.PhoneVerified,
		Roles:         roles,
	}
}

// ChallengeStage distinguishes first-time contact verification from a login
// second factor.
type ChallengeStage string

const (
	// StageVerify is issued during registration: prove contact ownership,
	// then log in again. No token is produced.
	StageVerify ChallengeStage = "verify"
	// StageMFA is issued during login: verifying all required channels
	// yields a token.
	StageMFA ChallengeStage = "mfa"
)

// Channel describes one second-factor channel inside a challenge.
type Channel struct {
	Required bool
	Contact  string
	Sent     bool // a code has already been dispatched for this channel
	Verified bool // this channel passed verification in the current challenge
}

// Challenge is an in-flight second-factor requirement produced by a
// first-factor login or a registration.
type Challenge struct {
	Stage ChallengeStage
	Email Channel
	Phone Channel
}

// Valid reports whether the challenge requires at least one channel.
// A challenge with no required channels must never reach the user.
func (c *Challenge) Valid() bool {
	return c != nil && (c.Email.Required || c.Phone.Required)
}

// Complete reports whether every required channel has been verified.
func (c *Challenge) Complete() bool {
	if !c.Valid() {
		return false
	}
	if c.Email.Required && !c.Email.Verified {
		return false
	}
	if c.Phone.Required && !c.Phone.Verified {
		return false
	}
	return true
}

// Registration is the input for creating a new account. Username is not a
// separate field: it defaults to the email address.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
}

// DispatchAck acknowledges an OTP dispatch so the caller can carry the
// contact into the verification step.
type DispatchAck struct {
	Contact string
	Medium  OtpMedium
}

// User is the server-side account record.
type User struct {
	ID            uuid.UUID
	FirstName     string
	LastName      string
	Email         string // doubles as the username
	Phone         string
	PwdHash       []byte
	Salt          []byte
	EmailVerified bool
	PhoneVerified bool
	MFAEnabled    bool
	Roles         []string
	CreatedAt     time.Time
}

// Profile projects the server record into the wire shape.
func (u *User) Profile() Profile {
	roles := append([]string(nil), u.Roles...)
	if roles == nil {
		roles = []string{}
	}
	return Profile{
		ID:            u.ID.String(),
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		Phone:         u.Phone,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		Roles:         roles,
	}
}

// OtpCode is a server-side one-time code bound to a contact and purpose.
type OtpCode struct {
	ID        uuid.UUID
	Contact   string
	Medium    OtpMedium
	Purpose   OtpPurpose
	Code      string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}
