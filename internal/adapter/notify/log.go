package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

// Log stands in for the broker when none is configured: every outbound
// message is written to the log instead.
type Log struct {
	logger zerolog.Logger
}

var (
	_ port.Notifier = Log{}
	_ port.Mailer   = Log{}
)

func NewLog(logger zerolog.Logger) Log {
	return Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l Log) Notify(_ context.Context, n port.Notification) error {
	l.logger.Info().
		Str("recipient", n.RecipientUserID).
		Str("category", n.Category).
		Str("title_id", n.RelatedTitleID).
		Str("entity_id", n.RelatedEntityID).
		Msg(n.Message)
	return nil
}

func (l Log) NotifyRole(_ context.Context, role domain.Role, message string) error {
	l.logger.Info().Str("role", string(role)).Msg(message)
	return nil
}

func (l Log) Send(_ context.Context, mail port.Mail) error {
	l.logger.Info().
		Str("to", mail.To).
		Str("subject", mail.Subject).
		Int("attachments", len(mail.Attachments)).
		Msg("mail")
	return nil
}
