package generate

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/dusk-indust/briefing/internal/store"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultModel is used when a prompt config names no model.
const DefaultModel = "gemini-2.0-flash-lite"

const contextPreamble = "\n\nHere is the data context for your analysis (JSON Format):\n"

var (
	// usesArticles detects a template action that mentions the article data.
	usesArticles = regexp.MustCompile(`(?s)\{\{.*articles.*\}\}`)
	// bareVar rewrites {{ name }} to {{ .name }} for the known variables,
	// so prompts written without the leading dot still render.
	bareVar = regexp.MustCompile(`\{\{(-?\s*)(articles_json|articles_text|articles|current_time|current_date|date|time)(\s*-?)\}\}`)
)

// promptArticle is the shape articles take inside a prompt.
type promptArticle struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	TranslatedTitle string   `json:"translated_title"`
	URL             string   `json:"url"`
	Content         string   `json:"content"`
	Summary         string   `json:"ai_summary"`
	PublishedAt     *string  `json:"published_at"`
	Source          string   `json:"source"`
	Sentiment       string   `json:"sentiment"`
	Relevance       int      `json:"relevance"`
	Tags            []string `json:"tags"`
	Entities        []string `json:"entities"`
}

func toPromptArticle(a store.Article) promptArticle {
	p := promptArticle{
		ID:              a.ID,
		Title:           a.Title,
		TranslatedTitle: a.TranslatedTitle,
		URL:             a.URL,
		Content:         a.Snippet,
		Summary:         a.Summary,
		Source:          a.SourceName,
		Sentiment:       a.Sentiment,
		Relevance:       a.Relevance,
		Tags:            a.Tags,
		Entities:        a.Entities,
	}
	if p.Source == "" {
		p.Source = "Unknown"
	}
	if !a.PublishedAt.IsZero() {
		s := a.PublishedAt.Format(time.RFC3339)
		p.PublishedAt = &s
	}
	return p
}

// PromptData is the variable set a prompt template is executed with.
func PromptData(arts []store.Article, now time.Time) (map[string]any, error) {
	serialized := make([]promptArticle, len(arts))
	for i, a := range arts {
		serialized[i] = toPromptArticle(a)
	}
	articlesJSON, err := jsonAPI.MarshalIndent(serialized, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("generate: encode articles: %w", err)
	}
	// Templates index articles as maps so field names match articles_json.
	var asMaps []map[string]any
	if err := jsonAPI.Unmarshal(articlesJSON, &asMaps); err != nil {
		return nil, fmt.Errorf("generate: encode articles: %w", err)
	}

	var text strings.Builder
	for i, a := range arts {
		body := a.Summary
		if body == "" {
			body = a.Snippet
		}
		fmt.Fprintf(&text, "\n[Article %d] (ID: %s) %s\n%s\n", i+1, a.ID, a.Title, body)
	}

	return map[string]any{
		"articles":      asMaps,
		"articles_json": string(articlesJSON),
		"articles_text": text.String(),
		"date":          now.Format(time.DateOnly),
		"time":          now.Format("15:04"),
		"current_time":  now.Format("2006-01-02 15:04"),
		"current_date":  now.Format(time.DateOnly),
	}, nil
}

// BuildPrompt executes promptText against the article data. A template that
// fails to parse or execute is used as plain text; the returned error says
// why. When the template never mentions the articles, their JSON is appended.
func BuildPrompt(promptText string, arts []store.Article, now time.Time) (string, error) {
	data, err := PromptData(arts, now)
	if err != nil {
		return "", err
	}

	rendered, renderErr := executePrompt(promptText, data)
	if renderErr != nil {
		rendered = promptText
	}
	if !usesArticles.MatchString(promptText) {
		rendered += contextPreamble + data["articles_json"].(string)
	}
	return rendered, renderErr
}

func executePrompt(promptText string, data map[string]any) (string, error) {
	src := bareVar.ReplaceAllString(promptText, "{{$1.$2$3}}")
	tpl, err := template.New("prompt").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("generate: parse prompt: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("generate: execute prompt: %w", err)
	}
	return buf.String(), nil
}
