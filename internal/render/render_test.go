package render

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/briefing/internal/citation"
	"github.com/dusk-indust/briefing/internal/content"
	"github.com/dusk-indust/briefing/internal/logging"
)

var fixedNow = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func newTestRenderer() *Renderer {
	return New(logging.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func threeArticles() []citation.Candidate {
	return []citation.Candidate{
		{ID: "art-1", Title: "One", URL: "https://news.test/1", SourceName: "Wire"},
		{ID: "art-2", Title: "Two", URL: "https://news.test/2", SourceName: "Ledger", ShortName: "LDG"},
		{ID: "art-3", Title: "Three", URL: "https://news.test/3", SourceName: "Wire"},
	}
}

const reportTemplate = `<h1>{{ .title }}</h1><p>{{ .summary }}</p>
<ol>{{ range .references }}<li id="ref-{{ .id }}">{{ .title }} ({{ .source_name }})</li>{{ end }}</ol>`

func reconciled(t *testing.T, doc string, style Style) Document {
	t.Helper()
	tree, err := content.ParseString(doc)
	require.NoError(t, err)
	res := citation.Reconcile(tree, threeArticles(), style.ReconcileOptions())
	return Document{Content: res.Tree, Reconciled: true, Citations: res, PipelineName: "Daily"}
}

func TestRenderEndToEnd(t *testing.T) {
	style := ParseStyle("numeric_superscript", map[string]any{
		"enclosure":   "square_brackets",
		"link_target": "external",
	})
	doc := reconciled(t, `{"title":"Markets","summary":"Growth continued [[CITATION:art-1]] while prices rose [[CITATION:art-2]], [[CITATION:art-3]]."}`, style)

	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: reportTemplate, CSS: "h1 { color: red; }"}, style)
	require.NoError(t, err)

	groups := regexp.MustCompile(`<span style="vertical-align: super;[^"]*">\[(.*?)\]</span>`).FindAllStringSubmatch(out, -1)
	require.Len(t, groups, 2)
	assert.Equal(t, `<a href="https://news.test/1" target="_blank" style="text-decoration: none; color: #2563eb;">1</a>`, groups[0][1])
	assert.Equal(t,
		`<a href="https://news.test/2" target="_blank" style="text-decoration: none; color: #2563eb;">2</a>, `+
			`<a href="https://news.test/3" target="_blank" style="text-decoration: none; color: #2563eb;">3</a>`,
		groups[1][1])

	assert.Equal(t, 3, strings.Count(out, "<li id=\"ref-"))
	assert.Less(t, strings.Index(out, "ref-art-1"), strings.Index(out, "ref-art-2"))
	assert.Less(t, strings.Index(out, "ref-art-2"), strings.Index(out, "ref-art-3"))
	assert.Contains(t, out, "h1 { color: red; }")
	assert.True(t, strings.HasPrefix(out, "<html>"))
	assert.NotContains(t, out, "CITE_GROUP")
}

func TestRenderKindNone(t *testing.T) {
	style := ParseStyle("none", nil)
	doc := reconciled(t, `{"summary":"A [[REF:art-1]] B"}`, style)

	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: "{{ .summary }}"}, style)
	require.NoError(t, err)
	assert.Contains(t, out, "A B")
	assert.NotContains(t, out, "<a ")
}

func TestRenderUserDefined(t *testing.T) {
	style := ParseStyle("user_defined", map[string]any{
		"link_target":       "internal",
		"citation_template": `<sup>{{ label }}|{{ url }}|{{ target }}</sup>`,
		"group_citations":   true,
	})
	assert.False(t, style.Group)

	doc := reconciled(t, `{"summary":"x [[REF:art-1]] [[REF:art-2]]"}`, style)
	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: "{{ .summary }}"}, style)
	require.NoError(t, err)
	assert.Contains(t, out, "x<sup>1|#ref-art-1|</sup><sup>2|#ref-art-2|</sup>")
}

func TestRenderUserDefinedDefaultTemplate(t *testing.T) {
	style := ParseStyle("user_defined", nil)
	doc := reconciled(t, `{"summary":"x [[REF:art-1]]"}`, style)

	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: "{{ .summary }}"}, style)
	require.NoError(t, err)
	assert.Contains(t, out, `<span class="cite"><a href="https://news.test/1" target="_blank">1</a></span>`)
}

func TestRenderEnclosureAndDisplay(t *testing.T) {
	cases := []struct {
		enclosure, display string
		open, close, span  string
	}{
		{"parenthesis", "regular", "(", ")", regularStyle},
		{"curly_braces", "superscript", "{", "}", superscriptStyle},
		{"none", "regular", "", "", regularStyle},
		{"bogus", "", "[", "]", superscriptStyle},
	}
	for _, tc := range cases {
		t.Run(tc.enclosure, func(t *testing.T) {
			style := ParseStyle("numeric_superscript", map[string]any{
				"enclosure":     tc.enclosure,
				"display_style": tc.display,
				"link_target":   "internal",
			})
			doc := reconciled(t, `{"s":"a [[REF:art-2]]"}`, style)
			out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: "{{ .s }}"}, style)
			require.NoError(t, err)
			want := `<span style="` + tc.span + `">` + tc.open +
				`<a href="#ref-art-2" style="text-decoration: none; color: #2563eb;">1</a>` + tc.close + `</span>`
			assert.Contains(t, out, want)
		})
	}
}

func TestRenderSourceLabels(t *testing.T) {
	style := ParseStyle("source_bracket", nil)
	doc := reconciled(t, `{"s":"a [[REF:art-2]]"}`, style)

	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: "{{ .s }}"}, style)
	require.NoError(t, err)
	assert.Contains(t, out, `>LDG</a>`)
}

func TestRenderMetadataAndFuncs(t *testing.T) {
	doc := Document{
		Content:      content.Map(content.F("body", content.String("**bold** [[REF:art-1]]"))),
		PipelineName: "Weekly",
	}
	body := `{{ .pipeline }}|{{ .pipeline_name }}|{{ .date }}|{{ .current_date }}|{{ .current_time }}|{{ markdown .body }}|{{ default "none" .missing }}`

	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: body}, DefaultStyle())
	require.NoError(t, err)
	assert.Contains(t, out, "Weekly|Weekly|2026-03-04|2026-03-04|09:30|<p><strong>bold</strong> [[REF:art-1]]</p>")
	assert.Contains(t, out, "|none")
}

func TestRenderContentDateWins(t *testing.T) {
	doc := Document{Content: content.Map(content.F("date", content.String("yesterday")))}
	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: "{{ .date }}/{{ .current_date }}"}, DefaultStyle())
	require.NoError(t, err)
	assert.Contains(t, out, "yesterday/yesterday")
}

func TestRenderTemplateErrorProducesErrorDocument(t *testing.T) {
	tl := logging.NewTestLogger()
	r := New(tl.Logger)

	out, err := r.Render(context.Background(), Document{Content: content.Map()}, Template{Body: "{{ .title "}, DefaultStyle())

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.True(t, strings.HasPrefix(out, "<html><body><h1>Formatting Error</h1><p>"))
	assert.Len(t, tl.FilterMessage("formatting failed").All(), 1)
}

func TestRenderNonMapContent(t *testing.T) {
	doc := Document{Content: content.List(content.String("a"), content.String("b"))}
	out, err := newTestRenderer().Render(context.Background(), doc, Template{Body: `{{ range .content }}<i>{{ . }}</i>{{ end }}`}, DefaultStyle())
	require.NoError(t, err)
	assert.Contains(t, out, "<i>a</i><i>b</i>")
}
