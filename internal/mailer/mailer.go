// Package mailer delivers transactional email (OTP codes).
package mailer

import (
	"context"
	"fmt"

	"github.com/ageniuscoder/chatrelay/backend/internal/config"
	"github.com/rs/zerolog/log"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// FromConfig picks the sender named by cfg.MailDriver.
func FromConfig(cfg config.Config) (Sender, error) {
	switch cfg.MailDriver {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" || cfg.SendGridFrom == "" {
			return nil, fmt.Errorf("mailer: sendgrid needs SENDGRID_API_KEY and SENDGRID_FROM")
		}
		return NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridFrom), nil
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			return nil, fmt.Errorf("mailer: smtp needs SMTP_HOST and SMTP_FROM")
		}
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom), nil
	case "log", "":
		if cfg.IsProduction() {
			return nil, fmt.Errorf("mailer: log driver would never deliver OTP mail in production, set MAIL_DRIVER")
		}
		return Log{}, nil
	default:
		return nil, fmt.Errorf("mailer: unknown driver %q", cfg.MailDriver)
	}
}

// Log writes mail to the application log instead of sending it. Meant for
// local development only.
type Log struct{}

func (Log) Send(_ context.Context, to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("mailer: not sending, log driver")
	return nil
}
