// Package delivery sends rendered reports to their recipients over email or
// Telegram and records the outcome as a delivery log entry.
package delivery

import (
	"context"
	"strings"
)

// Priority maps to the X-Priority family of mail headers.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityLow
)

// ParsePriority reads a priority name. "urgent" and "high" are high.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urgent", "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outgoing delivery.
type Message struct {
	To         []string
	CC         []string
	BCC        []string
	Subject    string
	HTML       string
	// Text is the plain-text rendition used by channels without HTML.
	Text       string
	Attachment *Attachment
	SenderName string
	FromEmail  string
	ReplyTo    string
	Priority   Priority
}

// ProviderStatus is what a provider reports for an accepted message.
type ProviderStatus struct {
	Provider string `json:"provider"`
	ID       string `json:"id,omitempty"`
	Status   string `json:"status"`
}

// Sender delivers a message through one provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (ProviderStatus, error)
}

// SanitizeName strips characters that would break a From header.
func SanitizeName(name string) string {
	return strings.NewReplacer(`"`, "", "<", "", ">", "", "\r", "", "\n", "").Replace(strings.TrimSpace(name))
}

// fromHeader formats `"Name" <addr>` or just addr.
func fromHeader(name, addr string) string {
	name = SanitizeName(name)
	if name == "" || strings.Contains(addr, "<") {
		return addr
	}
	return `"` + name + `" <` + addr + `>`
}
