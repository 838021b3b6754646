package delivery

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"path/filepath"
	"strings"
	"time"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
	From     string `koanf:"from" yaml:"from"`
	// UseSSL dials TLS directly (port 465); otherwise STARTTLS is used
	// unless DisableTLS is set.
	UseSSL     bool `koanf:"use_ssl" yaml:"use_ssl"`
	DisableTLS bool `koanf:"disable_tls" yaml:"disable_tls"`
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg     SMTPConfig
	timeout time.Duration
	now     func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("delivery: smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, timeout: 30 * time.Second, now: time.Now}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (ProviderStatus, error) {
	from := msg.FromEmail
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		return ProviderStatus{}, fmt.Errorf("delivery: smtp sender address missing")
	}
	msg.FromEmail = from
	body := buildMIME(msg, s.now())

	rcpts := make([]string, 0, len(msg.To)+len(msg.CC)+len(msg.BCC))
	rcpts = append(rcpts, msg.To...)
	rcpts = append(rcpts, msg.CC...)
	rcpts = append(rcpts, msg.BCC...)

	if err := s.deliver(ctx, from, rcpts, body); err != nil {
		return ProviderStatus{}, err
	}
	return ProviderStatus{Provider: "smtp", Status: "sent"}, nil
}

func (s *SMTPSender) deliver(ctx context.Context, from string, rcpts []string, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	d := &net.Dialer{Timeout: s.timeout}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.UseSSL {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: s.cfg.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("delivery: connect to smtp server: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("delivery: smtp client: %w", err)
	}
	defer client.Quit()

	if !s.cfg.UseSSL && !s.cfg.DisableTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("delivery: start tls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("delivery: smtp auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("delivery: set sender: %w", err)
	}
	for _, r := range rcpts {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("delivery: set recipient %s: %w", r, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("delivery: open data: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return fmt.Errorf("delivery: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("delivery: close data: %w", err)
	}
	return nil
}

// buildMIME renders msg as a MIME document. Bcc recipients never appear in
// the headers.
func buildMIME(msg Message, now time.Time) string {
	var b strings.Builder
	mixed := fmt.Sprintf("mixed_%d", now.UnixNano())
	alt := fmt.Sprintf("alt_%d", now.UnixNano())

	b.WriteString("From: " + fromHeader(msg.SenderName, msg.FromEmail) + "\r\n")
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	if len(msg.CC) > 0 {
		b.WriteString("Cc: " + strings.Join(msg.CC, ", ") + "\r\n")
	}
	if msg.ReplyTo != "" {
		b.WriteString("Reply-To: " + msg.ReplyTo + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	switch msg.Priority {
	case PriorityHigh:
		b.WriteString("X-Priority: 1\r\nX-MSMail-Priority: High\r\nImportance: High\r\n")
	case PriorityLow:
		b.WriteString("X-Priority: 5\r\nX-MSMail-Priority: Low\r\nImportance: Low\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")

	text := msg.Text
	if text == "" {
		text = "Please enable HTML to view this report."
	}
	writeAlternative := func() {
		b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", alt))
		b.WriteString(fmt.Sprintf("--%s\r\n", alt))
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(text + "\r\n")
		b.WriteString(fmt.Sprintf("--%s\r\n", alt))
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML + "\r\n")
		b.WriteString(fmt.Sprintf("--%s--\r\n", alt))
	}

	if msg.Attachment == nil {
		writeAlternative()
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", mixed))
	b.WriteString(fmt.Sprintf("--%s\r\n", mixed))
	writeAlternative()

	att := msg.Attachment
	ctype := att.ContentType
	if ctype == "" {
		ctype = mime.TypeByExtension(filepath.Ext(att.Filename))
	}
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	b.WriteString(fmt.Sprintf("--%s\r\n", mixed))
	b.WriteString(fmt.Sprintf("Content-Type: %s\r\n", ctype))
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", att.Filename))
	enc := base64.StdEncoding.EncodeToString(att.Content)
	for len(enc) > 76 {
		b.WriteString(enc[:76] + "\r\n")
		enc = enc[76:]
	}
	if enc != "" {
		b.WriteString(enc + "\r\n")
	}
	b.WriteString(fmt.Sprintf("--%s--\r\n", mixed))
	return b.String()
}
