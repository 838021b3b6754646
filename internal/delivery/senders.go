package delivery

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/logging"
)

// Email provider names.
const (
	EmailSMTP   = "smtp"
	EmailResend = "resend"
	EmailLog    = "log"
)

// Config selects the providers behind each channel.
type Config struct {
	// EmailProvider is smtp, resend or log. log only records the message.
	EmailProvider string         `koanf:"email_provider" yaml:"email_provider"`
	SMTP          SMTPConfig     `koanf:"smtp" yaml:"smtp"`
	Resend        ResendConfig   `koanf:"resend" yaml:"resend"`
	Telegram      TelegramConfig `koanf:"telegram" yaml:"telegram"`
}

// NewSenders builds the channel senders described by cfg. Telegram is only
// registered when a bot token is configured.
func NewSenders(cfg Config, log *logging.Logger) (map[string]Sender, error) {
	senders := make(map[string]Sender)

	switch strings.ToLower(cfg.EmailProvider) {
	case EmailSMTP:
		s, err := NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		senders[ChannelEmail] = s
	case EmailResend:
		s, err := NewResendSender(cfg.Resend)
		if err != nil {
			return nil, err
		}
		senders[ChannelEmail] = s
	case "", EmailLog:
		senders[ChannelEmail] = &LogSender{Log: log}
	default:
		return nil, fmt.Errorf("delivery: unknown email provider %q", cfg.EmailProvider)
	}

	if cfg.Telegram.Token != "" {
		s, err := NewTelegramSender(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		senders[ChannelTelegram] = s
	}
	return senders, nil
}

// LogSender records messages in the log instead of sending them.
type LogSender struct {
	Log *logging.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) (ProviderStatus, error) {
	if s.Log != nil {
		s.Log.Info(ctx, "mock email",
			zap.Strings("to", msg.To),
			zap.Strings("cc", msg.CC),
			zap.String("subject", msg.Subject),
			zap.Bool("attachment", msg.Attachment != nil),
		)
	}
	return ProviderStatus{Provider: "log", Status: "mock_sent"}, nil
}
