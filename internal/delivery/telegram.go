package delivery

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// telegramTextLimit is the Bot API's maximum message length in characters.
const telegramTextLimit = 4096

// TelegramConfig configures TelegramSender.
type TelegramConfig struct {
	Token   string `koanf:"token" yaml:"token"`
	BaseURL string `koanf:"base_url" yaml:"base_url"`
}

// telegramAPI is the part of *bot.Bot the sender uses.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

// TelegramSender posts the report text, and the artifact as a document, to
// each chat id in Message.To.
type TelegramSender struct {
	api telegramAPI
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("delivery: telegram token is required")
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.BaseURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.BaseURL))
	}
	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("delivery: telegram bot: %w", err)
	}
	return &TelegramSender{api: b}, nil
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) (ProviderStatus, error) {
	text := msg.Subject
	if msg.Text != "" {
		text += "\n\n" + msg.Text
	}
	text = truncateRunes(text, telegramTextLimit)

	var lastID int
	for _, chat := range msg.To {
		m, err := s.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: text})
		if err != nil {
			return ProviderStatus{}, fmt.Errorf("delivery: telegram message to %s: %w", chat, err)
		}
		lastID = m.ID
		if msg.Attachment == nil {
			continue
		}
		m, err = s.api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chat,
			Document: &models.InputFileUpload{
				Filename: msg.Attachment.Filename,
				Data:     bytes.NewReader(msg.Attachment.Content),
			},
			Caption: truncateRunes(msg.Subject, 1024),
		})
		if err != nil {
			return ProviderStatus{}, fmt.Errorf("delivery: telegram document to %s: %w", chat, err)
		}
		lastID = m.ID
	}
	return ProviderStatus{Provider: "telegram", ID: fmt.Sprint(lastID), Status: "sent"}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
