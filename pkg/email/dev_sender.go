package email

import (
	"context"
	"log/slog"
)

// devSender logs emails instead of sending them.
type devSender struct {
	log *slog.Logger
}

// NewDevSender returns an EmailSender for development environments.
func NewDevSender(log *slog.Logger) EmailSender {
	return &devSender{log: log}
}

func (s *devSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	s.log.InfoContext(ctx, "dev email",
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag),
	)
	return nil
}
