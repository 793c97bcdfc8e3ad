package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/logging"
)

// Mailer delivers password reset tokens to their owner.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// LogMailer records that a reset was issued without delivering anything.
// The token itself is never written.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer")}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, _ string, expiresAt time.Time) error {
	m.logger.Info(ctx, "password reset issued", "recipient", email, "expires_at", expiresAt)
	return nil
}
