package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/store"
)

var now = time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)

func testArticles() []store.Article {
	return []store.Article{
		{ID: "art-1", Title: "Chips", Summary: "Exports up", URL: "https://e.com/1", SourceName: "Reuters",
			PublishedAt: now.Add(-time.Hour), Tags: []string{"AI"}},
		{ID: "art-2", Title: "Rates", Snippet: "Held steady", URL: "https://e.com/2"},
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		title string
	}{
		{"plain", `{"title":"T"}`, "T"},
		{"json fence", "Sure!\n```json\n{\"title\":\"T\"}\n```\nbye", "T"},
		{"bare fence", "```\n{\"title\":\"T\"}\n```", "T"},
		{"bad unicode escape", `{"title":"T","x":"C:\users"}`, "T"},
		{"trailing commas", `{"title":"T","items":[1,2,],}`, "T"},
		{"needs general repair", `{"title":"T", "summary": "unterminated`, "T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseResponse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.title, tree.GetString("title"))
		})
	}
}

func TestParseResponse_Failures(t *testing.T) {
	_, err := ParseResponse("   ")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = ParseResponse("```json\n```")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	// A quoted word followed by prose is not a bare string document.
	_, err = ParseResponse(`"Hello" is the answer`)
	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, `"Hello" is the answer`, malformed.Raw)
}

func TestRepairEscapes(t *testing.T) {
	assert.Equal(t, `"\u00e9"`, RepairEscapes(`"\u00e9"`))
	assert.Equal(t, `"\\users"`, RepairEscapes(`"\users"`))
	assert.Equal(t, `"\\u12"`, RepairEscapes(`"\u12"`))
	assert.Equal(t, `"a\\b"`, RepairEscapes(`"a\\b"`), "escaped backslash untouched")
}

func TestStripTrailingCommas(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, StripTrailingCommas(`{"a":[1,2,]}`))
	assert.Equal(t, `{"a":1 }`, StripTrailingCommas(`{"a":1, }`))
	assert.Equal(t, `{"a":",]"}`, StripTrailingCommas(`{"a":",]"}`), "string contents untouched")
}

func TestBuildPrompt(t *testing.T) {
	arts := testArticles()

	t.Run("dot variables", func(t *testing.T) {
		p, err := BuildPrompt("Date {{.date}}\n{{range .articles}}- {{.title}} ({{.source}})\n{{end}}", arts, now)
		require.NoError(t, err)
		assert.Equal(t, "Date 2025-03-10\n- Chips (Reuters)\n- Rates (Unknown)\n", p)
	})

	t.Run("bare variables", func(t *testing.T) {
		p, err := BuildPrompt("At {{ current_time }}: {{ articles_text }}", arts, now)
		require.NoError(t, err)
		assert.Contains(t, p, "At 2025-03-10 09:05:")
		assert.Contains(t, p, "[Article 1] (ID: art-1) Chips\nExports up")
		assert.Contains(t, p, "[Article 2] (ID: art-2) Rates\nHeld steady")
		assert.NotContains(t, p, contextPreamble)
	})

	t.Run("auto inject", func(t *testing.T) {
		p, err := BuildPrompt("Summarize today's news.", arts, now)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(p, "Summarize today's news."+contextPreamble))
		assert.Contains(t, p, `"id": "art-1"`)
		assert.Contains(t, p, `"published_at": null`)
	})

	t.Run("broken template falls back to raw text", func(t *testing.T) {
		p, err := BuildPrompt("Broken {{ if }", arts, now)
		assert.Error(t, err)
		assert.True(t, strings.HasPrefix(p, "Broken {{ if }"))
		assert.Contains(t, p, contextPreamble)
	})
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("success uses default model", func(t *testing.T) {
		llm := &Mock{Reply: "```json\n{\"title\":\"Daily\",\"summary\":\"x [[REF:art-1]]\"}\n```"}
		g := New(llm, nil, "").WithClock(func() time.Time { return now })
		res := g.Generate(ctx, testArticles(), store.PromptConfig{PromptText: "Go"})
		require.NoError(t, res.Err)
		assert.Equal(t, "Daily", res.Content.GetString("title"))
		assert.Equal(t, DefaultModel, res.Model)
		require.Len(t, llm.Calls(), 1)
		assert.Equal(t, DefaultModel, llm.Calls()[0].Model)
		assert.Equal(t, res.Prompt, llm.Calls()[0].Prompt)
	})

	t.Run("no articles skips the model", func(t *testing.T) {
		llm := &Mock{Reply: "{}"}
		res := New(llm, nil, "m").Generate(ctx, nil, store.PromptConfig{PromptText: "Go"})
		assert.Equal(t, "No Articles Found", res.Content.GetString("title"))
		assert.Empty(t, llm.Calls())
	})

	t.Run("upstream failure becomes error content", func(t *testing.T) {
		tl := logging.NewTestLogger()
		llm := &Mock{Err: errors.New("quota exceeded")}
		res := New(llm, tl.Logger, "m").Generate(ctx, testArticles(), store.PromptConfig{PromptText: "Go", Model: "custom"})
		var up *UpstreamError
		require.ErrorAs(t, res.Err, &up)
		assert.True(t, IsErrorContent(res.Content))
		assert.Equal(t, "An error occurred: quota exceeded", res.Content.GetString("summary"))
		assert.Equal(t, "custom", res.Model)
		tl.AssertLogged(t, zapcore.ErrorLevel, "generation failed")
	})

	t.Run("empty reply", func(t *testing.T) {
		res := New(&Mock{}, nil, "m").Generate(ctx, testArticles(), store.PromptConfig{})
		assert.ErrorIs(t, res.Err, ErrEmptyResponse)
		assert.True(t, IsErrorContent(res.Content))
	})

	t.Run("unparseable reply", func(t *testing.T) {
		res := New(&Mock{Reply: "I cannot help with that."}, nil, "m").Generate(ctx, testArticles(), store.PromptConfig{})
		var mal *MalformedError
		if assert.ErrorAs(t, res.Err, &mal) {
			assert.Equal(t, "I cannot help with that.", mal.Raw)
		}
		assert.True(t, IsErrorContent(res.Content))
		assert.Equal(t, "I cannot help with that.", res.Raw)
	})
}

func TestNewLLM(t *testing.T) {
	llm, err := NewLLM(Config{Provider: "mock", MockReply: "{}"})
	require.NoError(t, err)
	out, err := llm.Complete(context.Background(), "p", "m")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	_, err = NewLLM(Config{Provider: ProviderOpenAI})
	assert.Error(t, err, "api key required")

	_, err = NewLLM(Config{Provider: "bard"})
	assert.Error(t, err)
}
