// Package sender delivers one-time codes out of band. The Log implementation
// stands in for the real email/SMS providers in development and tests.
package sender

import (
	"context"

	"github.com/avkuzmin/contact-admin/internal/model"
	"go.uber.org/zap"
)

// Sender dispatches a one-time code to a contact over a medium.
type Sender interface {
	Send(ctx context.Context, medium model.OtpMedium, contact, code string, purpose model.OtpPurpose) error
}

// Log writes dispatches to the log instead of delivering them.
type Log struct {
	log *zap.Logger
}

// NewLog constructs a logging sender.
func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

// Send logs the dispatch. The code itself is logged: this sender exists for
// development setups where the operator reads codes off the server log.
func (s *Log) Send(_ context.Context, medium model.OtpMedium, contact, code string, purpose model.OtpPurpose) error {
	s.log.Info("otp dispatch",
		zap.String("medium", string(medium)),
		zap.String("contact", contact),
		zap.String("purpose", string(purpose)),
		zap.String("code", code),
	)
	return nil
}
