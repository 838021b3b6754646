// Package render turns reconciled report content into a self-contained HTML
// document using a user-supplied template and a citation style.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/citation"
	"github.com/dusk-indust/briefing/internal/content"
	"github.com/dusk-indust/briefing/internal/logging"
)

// Template is the user template and stylesheet of a formatting config.
type Template struct {
	Body string
	CSS  string
}

// Document is the content handed to a template.
type Document struct {
	Content content.Node
	// Reconciled is set when Content went through citation reconciliation;
	// References then replaces any reference list the content carried.
	Reconciled   bool
	Citations    citation.Result
	PipelineName string
}

// Error is a template parse or execution failure.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "render: template: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Renderer executes formatting templates.
type Renderer struct {
	log *logging.Logger
	now func() time.Time
}

// New creates a Renderer. A nil logger discards output.
func New(log *logging.Logger) *Renderer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Renderer{log: log, now: time.Now}
}

// WithClock returns a copy of r that reads time from now.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	cp := *r
	cp.now = now
	return &cp
}

// Render executes tpl against doc and renders citation groups in style.
// The returned markup is always a complete document: on template failure it
// is a minimal error page and the error is returned alongside it.
func (r *Renderer) Render(ctx context.Context, doc Document, tpl Template, style Style) (string, error) {
	body, err := r.execute(doc, tpl.Body)
	if err != nil {
		r.log.Error(ctx, "formatting failed", zap.Error(err))
		return ErrorDocument(err.Error()), &Error{Err: err}
	}
	body = renderCitations(body, doc.Citations, style)
	return wrapDocument(body, tpl.CSS), nil
}

// ErrorDocument is the page produced when formatting fails.
func ErrorDocument(msg string) string {
	return "<html><body><h1>Formatting Error</h1><p>" + html.EscapeString(msg) + "</p></body></html>"
}

func (r *Renderer) execute(doc Document, body string) (string, error) {
	t, err := template.New("report").Funcs(funcMap()).Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, r.data(doc)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// data builds the template context: the content's top-level fields plus
// references and run metadata.
func (r *Renderer) data(doc Document) map[string]any {
	data := make(map[string]any)
	switch doc.Content.Kind() {
	case content.KindMap:
		for _, f := range doc.Content.Fields() {
			data[f.Key] = f.Value.Interface()
		}
	case content.KindNull:
	default:
		data["content"] = doc.Content.Interface()
	}

	if doc.Reconciled {
		refs := make([]map[string]any, len(doc.Citations.References))
		for i, ref := range doc.Citations.References {
			refs[i] = referenceMap(ref)
		}
		data["references"] = refs
		data["id_to_citation"] = doc.Citations.Labels

		var bySource []map[string]any
		for _, g := range doc.Citations.BySource() {
			items := make([]map[string]any, len(g.References))
			for i, ref := range g.References {
				items[i] = referenceMap(ref)
			}
			bySource = append(bySource, map[string]any{"source": g.Source, "references": items})
		}
		data["references_by_source"] = bySource
	}

	now := r.now()
	pipeline := doc.PipelineName
	if pipeline == "" {
		pipeline = "Unknown"
	}
	if _, ok := data["pipeline"]; !ok {
		data["pipeline"] = pipeline
	}
	if _, ok := data["date"]; !ok {
		data["date"] = now.Format("2006-01-02")
	}
	data["current_date"] = data["date"]
	data["current_time"] = now.Format("15:04")
	data["pipeline_name"] = doc.PipelineName
	return data
}

func referenceMap(ref citation.Reference) map[string]any {
	return map[string]any{
		"id":          ref.ID,
		"number":      ref.Number,
		"title":       ref.Title,
		"url":         ref.URL,
		"source_name": ref.SourceName,
		"citation":    ref.Label,
	}
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"markdown": markdownHTML,
		"safe":     func(s string) template.HTML { return template.HTML(s) },
		"join": func(items []any, sep string) string {
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = fmt.Sprint(it)
			}
			return strings.Join(parts, sep)
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			words := strings.Fields(s)
			for i, w := range words {
				r := []rune(w)
				words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
			}
			return strings.Join(words, " ")
		},
		"default": func(def, v any) any {
			if v == nil {
				return def
			}
			if s, ok := v.(string); ok && s == "" {
				return def
			}
			return v
		},
	}
}

// markdownHTML renders markdown text to trusted HTML. Conversion failures
// fall back to the escaped input.
func markdownHTML(s string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(s), &buf); err != nil {
		return template.HTML(html.EscapeString(s))
	}
	return template.HTML(buf.String())
}

const baseCSS = `body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }`

func wrapDocument(body, css string) string {
	var b strings.Builder
	b.WriteString("<html>\n<head>\n<meta charset=\"utf-8\">\n<style>\n")
	b.WriteString(baseCSS)
	b.WriteString("\n")
	b.WriteString(css)
	b.WriteString("\n</style>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}
