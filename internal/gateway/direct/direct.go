// Package direct implements the backend gateway straight over the service
// and storage layers, with no HTTP hop. It is the in-process equivalent of
// the REST backend and honors the same error taxonomy.
package direct

import (
	"context"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/gateway"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/avkuzmin/contact-admin/internal/service"
)

// Gateway adapts an AuthService to the gateway contract.
type Gateway struct {
	svc service.AuthService
}

var _ gateway.Gateway = (*Gateway)(nil)

// New constructs a direct gateway over the service layer.
func New(svc service.AuthService) *Gateway { return &Gateway{svc: svc} }

func (g *Gateway) Register(ctx context.Context, reg model.Registration) (string, error) {
	return g.svc.Register(ctx, reg)
}

func (g *Gateway) Login(ctx context.Context, email, password string) (gateway.LoginResult, error) {
	out, err := g.svc.LoginWithIP(ctx, email, password, "local")
	if err != nil {
		return gateway.LoginResult{}, err
	}
	if out.Challenge != nil {
		return gateway.LoginResult{Kind: gateway.LoginChallenge, Challenge: out.Challenge}, nil
	}
	return gateway.LoginResult{Kind: gateway.LoginToken, Token: out.Token}, nil
}

func (g *Gateway) DispatchOtp(ctx context.Context, medium model.OtpMedium, contact string, purpose model.OtpPurpose) (model.DispatchAck, error) {
	if err := g.svc.DispatchOtp(ctx, medium, contact, purpose); err != nil {
		return model.DispatchAck{}, err
	}
	return model.DispatchAck{Contact: contact, Medium: medium}, nil
}

func (g *Gateway) VerifyOtp(ctx context.Context, purpose model.OtpPurpose, contact, code string) (gateway.VerifyResult, error) {
	out, err := g.svc.VerifyOtp(ctx, purpose, contact, code)
	if err != nil {
		return gateway.VerifyResult{}, err
	}
	return gateway.VerifyResult{Token: out.Token, User: out.User}, nil
}

func (g *Gateway) ResendOtp(ctx context.Context, identifier string, purpose model.OtpPurpose) error {
	return g.svc.ResendOtp(ctx, identifier, purpose)
}

func (g *Gateway) CurrentUser(ctx context.Context, bearer string) (model.Profile, error) {
	p, err := g.svc.CurrentUser(ctx, bearer)
	if err != nil {
		// the service already returns coded errors; make sure nothing else
		// leaks through as a non-categorized failure
		if errs.CodeOf(err) == "" {
			return model.Profile{}, errs.E(errs.ErrSessionExpired, "AUTH_002", "invalid or expired token")
		}
		return model.Profile{}, err
	}
	return p, nil
}

func (g *Gateway) RequestPasswordReset(ctx context.Context, identifier string) error {
	return g.svc.RequestPasswordReset(ctx, identifier)
}

func (g *Gateway) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	return g.svc.ResetPassword(ctx, identifier, code, newPassword)
}
