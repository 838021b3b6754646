package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/store"
)

// Channel names as stored in delivery configs.
const (
	ChannelEmail    = "EMAIL"
	ChannelTelegram = "TELEGRAM"
)

// Delivery log statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request is one delivery stage invocation.
type Request struct {
	Config       store.DeliveryConfig
	Title        string
	PipelineName string
	HTML         string
	// AttachmentPath is the output artifact, if any.
	AttachmentPath string
	// Settings are the user's account-wide sender settings. Config
	// parameters override them key by key.
	Settings map[string]any
}

// Dispatcher resolves a delivery config into messages and sends them.
type Dispatcher struct {
	senders map[string]Sender
	// resend builds a per-user Resend sender when settings carry a key.
	resend func(apiKey string) (Sender, error)
	log    *logging.Logger
	now    func() time.Time
}

// NewDispatcher creates a Dispatcher with a sender per channel.
func NewDispatcher(senders map[string]Sender, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NewNop()
	}
	norm := make(map[string]Sender, len(senders))
	for ch, s := range senders {
		norm[strings.ToUpper(ch)] = s
	}
	return &Dispatcher{
		senders: norm,
		resend: func(key string) (Sender, error) {
			return NewResendSender(ResendConfig{APIKey: key})
		},
		log: log,
		now: time.Now,
	}
}

// WithClock returns a copy of d that reads time from now.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	cp := *d
	cp.now = now
	return &cp
}

// Dispatch sends req to every recipient and returns the log entry. Send
// failures never escape: they are recorded in the entry.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) store.DeliveryLogEntry {
	channel := strings.ToUpper(req.Config.DeliveryType)
	params := merge(req.Settings, req.Config.Parameters)

	recipients := List(params["recipients"])
	if len(recipients) == 0 && channel == ChannelTelegram {
		recipients = List(params["chat_ids"])
	}
	entry := store.DeliveryLogEntry{
		Channel:    req.Config.DeliveryType,
		Config:     req.Config.Parameters,
		Status:     StatusSuccess,
		Timestamp:  d.now().UTC(),
		Subject:    d.subject(ctx, params, req),
		Recipients: recipients,
		CC:         List(first(params, "cc", "CC")),
		BCC:        List(first(params, "bcc", "BCC")),
	}
	if entry.Recipients == nil {
		entry.Recipients = []string{}
	}
	if entry.CC == nil {
		entry.CC = []string{}
	}
	if entry.BCC == nil {
		entry.BCC = []string{}
	}

	sender, err := d.senderFor(channel, params)
	if err != nil {
		return d.failed(ctx, entry, err)
	}
	if len(recipients) == 0 {
		d.log.Warn(ctx, "delivery config has no recipients", zap.String("channel", channel))
		return entry
	}

	priority := ParsePriority(cast.ToString(params["priority"]))
	if cast.ToBool(params["urgent"]) {
		priority = PriorityHigh
	}
	base := Message{
		CC:         entry.CC,
		BCC:        entry.BCC,
		Subject:    entry.Subject,
		HTML:       req.HTML,
		Text:       PlainText(req.HTML),
		Attachment: d.attachment(ctx, req.AttachmentPath),
		SenderName: SanitizeName(cast.ToString(first(params, "smtp_sender_name", "sender_name", "from_name"))),
		FromEmail:  cast.ToString(first(params, "smtp_from_email", "from_email")),
		ReplyTo:    cast.ToString(first(params, "smtp_reply_to", "reply_to")),
		Priority:   priority,
	}

	var errs []error
	for _, rcpt := range recipients {
		msg := base
		msg.To = []string{rcpt}
		status, err := sender.Send(ctx, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rcpt, err))
			continue
		}
		d.log.Info(ctx, "report delivered",
			zap.String("channel", channel),
			zap.String("recipient", rcpt),
			zap.String("provider", status.Provider),
			zap.String("provider_id", status.ID),
			zap.String("provider_status", status.Status),
		)
	}
	if len(errs) > 0 {
		return d.failed(ctx, entry, errors.Join(errs...))
	}
	return entry
}

func (d *Dispatcher) failed(ctx context.Context, entry store.DeliveryLogEntry, err error) store.DeliveryLogEntry {
	d.log.Error(ctx, "delivery failed", zap.String("channel", entry.Channel), zap.Error(err))
	entry.Status = StatusFailed
	entry.Error = err.Error()
	return entry
}

func (d *Dispatcher) senderFor(channel string, params map[string]any) (Sender, error) {
	if channel == ChannelEmail {
		if key := cast.ToString(params["resend_api_key"]); key != "" && d.resend != nil {
			return d.resend(key)
		}
	}
	s, ok := d.senders[channel]
	if !ok {
		return nil, fmt.Errorf("delivery: no sender configured for channel %q", channel)
	}
	return s, nil
}

// subject renders the subject template, falling back to "Report: <title>".
func (d *Dispatcher) subject(ctx context.Context, params map[string]any, req Request) string {
	fallback := "Report: " + req.Title
	tpl := cast.ToString(params["subject"])
	if tpl == "" {
		return fallback
	}
	pipeline := req.PipelineName
	if pipeline == "" {
		pipeline = "Unknown"
	}
	now := d.now()
	out, err := renderSubject(tpl, map[string]string{
		"date":          now.Format(time.DateOnly),
		"time":          now.Format("15:04"),
		"title":         req.Title,
		"pipeline":      pipeline,
		"pipeline_name": pipeline,
	})
	if err != nil {
		d.log.Error(ctx, "subject template failed", zap.Error(err))
		return fallback
	}
	return out
}

var bareSubjectVar = regexp.MustCompile(`\{\{(-?\s*)(date|time|title|pipeline_name|pipeline)(\s*-?)\}\}`)

func renderSubject(tpl string, data map[string]string) (string, error) {
	t, err := template.New("subject").Option("missingkey=error").Parse(bareSubjectVar.ReplaceAllString(tpl, "{{$1.$2$3}}"))
	if err != nil {
		return "", fmt.Errorf("delivery: parse subject: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("delivery: execute subject: %w", err)
	}
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(buf.String())), nil
}

// attachment loads the artifact. A missing or unreadable file is logged and
// the message goes out without it.
func (d *Dispatcher) attachment(ctx context.Context, path string) *Attachment {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		d.log.Warn(ctx, "attachment unavailable", zap.String("path", path), zap.Error(err))
		return nil
	}
	return &Attachment{Filename: filepath.Base(path), Content: data}
}

// PlainText extracts the readable text of an HTML document.
func PlainText(markup string) string {
	if markup == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	doc.Find("style, script, head").Remove()
	var lines []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n")
}

// List reads a recipient list given as a list or a comma-separated string.
func List(v any) []string {
	if v == nil {
		return nil
	}
	var items []string
	if s, ok := v.(string); ok {
		items = strings.Split(s, ",")
	} else {
		items = cast.ToStringSlice(v)
	}
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func merge(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// first returns the first non-empty value among keys.
func first(params map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := params[k]
		if !ok || v == nil {
			continue
		}
		if cast.ToString(v) != "" || len(cast.ToStringSlice(v)) > 0 {
			return v
		}
	}
	return nil
}
