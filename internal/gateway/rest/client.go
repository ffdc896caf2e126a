// Package rest implements the backend gateway over the admin REST API.
// Responses arrive either wrapped in the {success,data,error} envelope or
// flat; both are tolerated here so callers above see one clean shape.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/gateway"
	"github.com/avkuzmin/contact-admin/internal/model"
	"go.uber.org/zap"
)

// Client talks to the admin REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

var _ gateway.Gateway = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets a diagnostic logger (development builds only; the default
// is a nop logger so backend internals are never logged in production).
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New constructs a REST gateway client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// envelope is the standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// do issues a JSON request and decodes the payload into out (which may be
// nil). Non-2xx responses are normalized into coded errors; only transport
// and parse failures surface as ErrTransport.
func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any, fallback error) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.E(errs.ErrTransport, "ENCODE", "failed to encode request")
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errs.E(errs.ErrTransport, "REQUEST", "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.E(errs.ErrTransport, "NETWORK", "could not reach the server")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.E(errs.ErrTransport, "NETWORK", "could not read the response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env) // tolerate non-JSON error bodies
		code := ""
		if env.Error != nil {
			code = env.Error.Code
		}
		c.log.Debug("api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", code),
		)
		return coded(code, resp.StatusCode, fallback)
	}

	if out == nil {
		return nil
	}
	// Unwrap the data property when the envelope is present, otherwise
	// treat the body as the payload itself.
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.E(errs.ErrTransport, "DECODE", "malformed response from server")
	}
	return nil
}

// Register creates an account; the server derives the username from email.
func (c *Client) Register(ctx context.Context, reg model.Registration) (string, error) {
	req := map[string]string{
		"firstName": reg.FirstName,
		"lastName":  reg.LastName,
		"email":     reg.Email,
		"phone":     reg.Phone,
		"password":  reg.Password,
	}
	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/register", req, "", &out, errs.ErrRegistrationFailed); err != nil {
		return "", err
	}
	if out.UserID == "" {
		return "", errs.E(errs.ErrRegistrationFailed, "REGISTER_FAILED", "invalid response from server")
	}
	return out.UserID, nil
}

// loginPayload covers all three login response variants; the discriminant
// is which field group is populated.
type loginPayload struct {
	Token string `json:"token"`

	RequiresOtp bool   `json:"requiresOtp"`
	Contact     string `json:"contact"`
	Medium      string `json:"medium"`

	Stage     string `json:"stage"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	EmailSent bool   `json:"emailSent"`
	PhoneSent bool   `json:"phoneSent"`
}

// Login resolves the polymorphic login response into the tagged LoginResult.
func (c *Client) Login(ctx context.Context, email, password string) (gateway.LoginResult, error) {
	req := map[string]string{"email": email, "password": password}
	var out loginPayload
	if err := c.do(ctx, http.MethodPost, "/users/login", req, "", &out, errs.ErrAuthenticationFailed); err != nil {
		return gateway.LoginResult{}, err
	}

	switch {
	case out.Token != "":
		return gateway.LoginResult{Kind: gateway.LoginToken, Token: out.Token}, nil

	case out.RequiresOtp:
		ch := &model.Challenge{Stage: model.StageMFA}
		switch model.OtpMedium(out.Medium) {
		case model.MediumPhone:
			ch.Phone = model.Channel{Required: true, Contact: out.Contact}
		default:
			ch.Email = model.Channel{Required: true, Contact: out.Contact}
		}
		return gateway.LoginResult{Kind: gateway.LoginChallenge, Challenge: ch}, nil

	case out.Stage != "":
		ch := &model.Challenge{Stage: model.ChallengeStage(out.Stage)}
		if out.Email != "" {
			ch.Email = model.Channel{Required: true, Contact: out.Email, Sent: out.EmailSent}
		}
		if out.Phone != "" {
			ch.Phone = model.Channel{Required: true, Contact: out.Phone, Sent: out.PhoneSent}
		}
		if !ch.Valid() {
			return gateway.LoginResult{}, errs.E(errs.ErrTransport, "DECODE", "challenge without required channels")
		}
		return gateway.LoginResult{Kind: gateway.LoginChallenge, Challenge: ch}, nil

	default:
		return gateway.LoginResult{}, errs.E(errs.ErrAuthenticationFailed, "LOGIN_FAILED", "invalid response from server")
	}
}

// DispatchOtp sends a one-time code for the contact over the medium.
func (c *Client) DispatchOtp(ctx context.Context, medium model.OtpMedium, contact string, purpose model.OtpPurpose) (model.DispatchAck, error) {
	req := map[string]string{"medium": string(medium), "purpose": string(purpose)}
	if medium == model.MediumEmail {
		req["email"] = contact
	} else {
		req["phone"] = contact
	}
	var out struct {
		Contact string `json:"contact"`
		Medium  string `json:"medium"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/login-otp", req, "", &out, errs.ErrOtpDispatchFailed); err != nil {
		return model.DispatchAck{}, err
	}
	ack := model.DispatchAck{Contact: out.Contact, Medium: model.OtpMedium(out.Medium)}
	if ack.Contact == "" {
		ack = model.DispatchAck{Contact: contact, Medium: medium}
	}
	return ack, nil
}

// VerifyOtp submits a code; the login purpose yields a token, registration
// yields a bare acknowledgement.
func (c *Client) VerifyOtp(ctx context.Context, purpose model.OtpPurpose, contact, code string) (gateway.VerifyResult, error) {
	req := map[string]string{"purpose": string(purpose), "contact": contact, "code": code}
	var out struct {
		Token string         `json:"token"`
		User  *model.Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/verify-otp", req, "", &out, errs.ErrOtpInvalid); err != nil {
		return gateway.VerifyResult{}, err
	}
	return gateway.VerifyResult{Token: out.Token, User: out.User}, nil
}

// ResendOtp re-dispatches a code for the identifier.
func (c *Client) ResendOtp(ctx context.Context, identifier string, purpose model.OtpPurpose) error {
	req := map[string]string{"identifier": identifier, "purpose": string(purpose)}
	var out struct {
		Sent bool `json:"sent"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/resend-otp", req, "", &out, errs.ErrOtpDispatchFailed); err != nil {
		return err
	}
	if !out.Sent {
		return errs.E(errs.ErrOtpDispatchFailed, "OTP_RESEND_FAILED", "failed to resend the code")
	}
	return nil
}

// CurrentUser resolves the profile behind a bearer token.
func (c *Client) CurrentUser(ctx context.Context, bearer string) (model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, bearer, &out, errs.ErrSessionExpired); err != nil {
		return model.Profile{}, err
	}
	return out, nil
}

// RequestPasswordReset starts an OTP-backed reset for the identifier.
func (c *Client) RequestPasswordReset(ctx context.Context, identifier string) error {
	req := map[string]string{"identifier": identifier}
	return c.do(ctx, http.MethodPost, "/users/forgot-password/request", req, "", nil, errs.ErrOtpDispatchFailed)
}

// ResetPassword completes a reset with the delivered code.
func (c *Client) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	req := map[string]string{"identifier": identifier, "code": code, "newPassword": newPassword}
	return c.do(ctx, http.MethodPost, "/users/forgot-password/confirm", req, "", nil, errs.ErrOtpInvalid)
}

// String implements fmt.Stringer for diagnostics.
func (c *Client) String() string { return fmt.Sprintf("rest gateway (%s)", c.baseURL) }
