package output

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unsafeChars = regexp.MustCompile(`[/\\:*?"<>|]`)
	lineBreaks  = regexp.MustCompile(`[\r\n]+`)
)

// FilenameData is what a filename template can reference.
type FilenameData struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Title    string `json:"title"`
	Pipeline string `json:"pipeline"`
}

// NewFilenameData fills the template fields. Empty title and pipeline
// fall back to "Untitled" and "Unknown".
func NewFilenameData(title, pipeline string, now time.Time) FilenameData {
	if title == "" {
		title = "Untitled"
	}
	if pipeline == "" {
		pipeline = "Unknown"
	}
	return FilenameData{
		Date:     now.Format(time.DateOnly),
		Time:     now.Format("15-04"),
		Title:    title,
		Pipeline: pipeline,
	}
}

// RenderFilename executes tpl and sanitizes the result. Fields are available
// both as {{.date}} and {{ date }}.
func RenderFilename(tpl string, data FilenameData) (string, error) {
	src := bareField.ReplaceAllString(tpl, "{{$1.$2$3}}")
	t, err := template.New("filename").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("output: parse filename template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]string{
		"date":     data.Date,
		"time":     data.Time,
		"title":    data.Title,
		"pipeline": data.Pipeline,
	}); err != nil {
		return "", fmt.Errorf("output: execute filename template: %w", err)
	}
	return Sanitize(buf.String()), nil
}

var bareField = regexp.MustCompile(`\{\{(-?\s*)(date|time|title|pipeline)(\s*-?)\}\}`)

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
})))

// Sanitize makes s safe as a single path element. It folds to ASCII,
// replaces path-breaking characters with "-" and collapses line breaks.
// Case and inner spaces are kept.
func Sanitize(s string) string {
	if folded, _, err := transform.String(asciiFold, s); err == nil {
		s = folded
	}
	s = unsafeChars.ReplaceAllString(s, "-")
	s = lineBreaks.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
