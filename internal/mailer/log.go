package mailer

import (
	"context"
	"errors"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
)

var _ model.Mailer = (*LogMailer)(nil)

// LogMailer writes outgoing messages to the log instead of delivering them.
type LogMailer struct {
	from   string
	logger *logger.Logger
}

func NewLogMailer(from string, logger *logger.Logger) *LogMailer {
	return &LogMailer{from: from, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return errors.New("message has no recipient")
	}

	m.logger.Info("Mailer: message sent",
		"from", m.from,
		"to", msg.To,
		"subject", msg.Subject)
	m.logger.Debug("Mailer: message body",
		"to", msg.To,
		"body", msg.Body)

	return nil
}
