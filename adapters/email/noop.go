package email

import (
	"context"

	"github.com/artpar/carebill/ports"
	"github.com/rs/zerolog"
)

// NoopSender is a no-op email sender for when reports are disabled.
type NoopSender struct{}

// NewNoopSender creates a new no-op email sender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send does nothing.
func (s *NoopSender) Send(ctx context.Context, msg ports.EmailMessage) error {
	return nil
}

// LogSender writes reports to the log instead of mailing them.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a sender that logs each message at info level.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "email").Logger()}
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, msg ports.EmailMessage) error {
	s.logger.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("run report")
	return nil
}

var (
	_ ports.EmailSender = (*NoopSender)(nil)
	_ ports.EmailSender = (*LogSender)(nil)
)
