package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultResendURL = "https://api.resend.com"
	// resendSandboxFrom is the only sender Resend accepts before a domain
	// is verified.
	resendSandboxFrom = "onboarding@resend.dev"
)

// ResendConfig configures ResendSender.
type ResendConfig struct {
	APIKey  string `koanf:"api_key" yaml:"api_key"`
	BaseURL string `koanf:"base_url" yaml:"base_url"`
	From    string `koanf:"from" yaml:"from"`
}

// ResendSender sends mail through the Resend HTTP API.
type ResendSender struct {
	cfg        ResendConfig
	httpClient *http.Client
}

func NewResendSender(cfg ResendConfig) (*ResendSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("delivery: resend api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultResendURL
	}
	return &ResendSender{cfg: cfg, httpClient: &http.Client{Timeout: 30 * time.Second}}, nil
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendEmail struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Text        string             `json:"text,omitempty"`
	CC          []string           `json:"cc,omitempty"`
	BCC         []string           `json:"bcc,omitempty"`
	ReplyTo     string             `json:"reply_to,omitempty"`
	Headers     map[string]string  `json:"headers,omitempty"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (ProviderStatus, error) {
	from := msg.FromEmail
	if from == "" {
		from = s.cfg.From
	}
	if !strings.Contains(from, "@") {
		from = resendSandboxFrom
	}

	payload := resendEmail{
		From:    fromHeader(msg.SenderName, from),
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		CC:      msg.CC,
		BCC:     msg.BCC,
		ReplyTo: msg.ReplyTo,
	}
	switch msg.Priority {
	case PriorityHigh:
		payload.Headers = map[string]string{"X-Priority": "1", "Importance": "High"}
	case PriorityLow:
		payload.Headers = map[string]string{"X-Priority": "5", "Importance": "Low"}
	}
	if att := msg.Attachment; att != nil {
		payload.Attachments = []resendAttachment{{
			Filename: att.Filename,
			Content:  base64.StdEncoding.EncodeToString(att.Content),
		}}
	}

	body, err := jsonAPI.Marshal(payload)
	if err != nil {
		return ProviderStatus{}, fmt.Errorf("delivery: encode resend request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.BaseURL, "/")+"/emails", bytes.NewReader(body))
	if err != nil {
		return ProviderStatus{}, fmt.Errorf("delivery: build resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ProviderStatus{}, fmt.Errorf("delivery: resend request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return ProviderStatus{}, fmt.Errorf("delivery: resend error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	var out struct {
		ID string `json:"id"`
	}
	// The mail was accepted; an unreadable body only loses the message id.
	if err := jsonAPI.Unmarshal(respBody, &out); err != nil || out.ID == "" {
		return ProviderStatus{Provider: "resend", Status: "unconfirmed"}, nil
	}
	return ProviderStatus{Provider: "resend", ID: out.ID, Status: "sent"}, nil
}
