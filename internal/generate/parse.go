package generate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/dusk-indust/briefing/internal/content"
)

// ErrEmptyResponse is returned when the model replies with nothing.
var ErrEmptyResponse = errors.New("generate: empty response")

// MalformedError reports a response that could not be decoded even after
// every repair attempt. Err is the first (strict) decode failure.
type MalformedError struct {
	Raw string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("generate: malformed response: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// ParseResponse decodes a model reply into a content tree, attempting in
// turn a strict decode, escape repair, trailing comma removal and finally a
// general JSON repair.
func ParseResponse(raw string) (content.Node, error) {
	text := StripFence(raw)
	if strings.TrimSpace(text) == "" {
		return content.Node{}, ErrEmptyResponse
	}

	tree, err := content.ParseString(text)
	if err == nil {
		return tree, nil
	}
	originalErr := err

	text = RepairEscapes(text)
	if tree, err := content.ParseString(text); err == nil {
		return tree, nil
	}

	text = StripTrailingCommas(text)
	if tree, err := content.ParseString(text); err == nil {
		return tree, nil
	}

	// jsonrepair quotes bare prose into a JSON string; only accept it when
	// the repair produced a structure.
	repaired, err := jsonrepair.JSONRepair(text)
	if err == nil {
		tree, err := content.ParseString(repaired)
		if err == nil && (tree.Kind() == content.KindMap || tree.Kind() == content.KindList) {
			return tree, nil
		}
	}
	return content.Node{}, &MalformedError{Raw: raw, Err: originalErr}
}

// StripFence extracts the body of a ```json fence, or failing that of a
// plain ``` fence. Text without fences is returned trimmed.
func StripFence(s string) string {
	for _, open := range []string{"```json", "```"} {
		i := strings.Index(s, open)
		if i < 0 {
			continue
		}
		body := s[i+len(open):]
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(s)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// RepairEscapes escapes the backslash of every \u that is not followed by
// four hex digits. Escaped backslashes are left alone.
func RepairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		if next == 'u' {
			valid := i+6 <= len(s)
			for k := i + 2; valid && k < i+6; k++ {
				valid = isHex(s[k])
			}
			if !valid {
				b.WriteString(`\\u`)
				i++
				continue
			}
		}
		b.WriteByte(c)
		b.WriteByte(next)
		i++
	}
	return b.String()
}

// StripTrailingCommas removes commas that directly precede a closing
// bracket or brace, ignoring anything inside string literals.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(s) {
					i++
					b.WriteByte(s[i])
				}
			case '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ErrorContent is the content produced when generation fails.
func ErrorContent(msg string) content.Node {
	return content.Map(
		content.F("title", content.String("Error Generating Report")),
		content.F("summary", content.String("An error occurred: "+msg)),
		content.F("sections", content.List()),
		content.F("error", content.String(msg)),
	)
}

// NoArticlesContent is the content produced when no article was selected.
func NoArticlesContent() content.Node {
	return content.Map(
		content.F("title", content.String("No Articles Found")),
		content.F("summary", content.String("No articles matched the criteria.")),
		content.F("sections", content.List()),
	)
}

// IsErrorContent reports whether tree is an ErrorContent object.
func IsErrorContent(tree content.Node) bool {
	_, ok := tree.Get("error")
	return ok && tree.GetString("title") == "Error Generating Report"
}
