package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// seedCorpus loads two users' sources and a small article set.
func seedCorpus(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	c := Corpus{
		Sources: []Source{
			{ID: "src-reuters", UserID: "u1", Name: "Reuters", ReferenceName: "RTRS"},
			{ID: "src-ft", UserID: "u1", Name: "Financial Times"},
			{ID: "src-other", UserID: "u2", Name: "Elsewhere"},
		},
		Articles: []Article{
			{ID: "a1", SourceID: "src-reuters", Title: "Chip exports surge", Summary: "Semiconductor exports grew.",
				PublishedAt: base.Add(-2 * time.Hour), ScrapedAt: base.Add(-time.Hour), Relevance: 8,
				Sentiment: "positive", Tags: []string{"Chips", "Trade"}, Entities: []string{"TSMC"}, StoryID: "story-1"},
			{ID: "a2", SourceID: "src-ft", Title: "Rates hold", TranslatedTitle: "Rates steady",
				PublishedAt: base.Add(-30 * time.Hour), ScrapedAt: base.Add(-2 * time.Hour), Relevance: 5,
				Sentiment: "neutral", Tags: []string{"Macro"}},
			{ID: "a3", SourceID: "src-reuters", Title: "Old news", Snippet: "chip shortage eases",
				PublishedAt: base.Add(-10 * 24 * time.Hour), ScrapedAt: base.Add(-10 * 24 * time.Hour), Relevance: 2},
			{ID: "b1", SourceID: "src-other", Title: "Chip exports elsewhere",
				PublishedAt: base.Add(-time.Hour), Relevance: 9},
		},
	}
	require.NoError(t, c.Load(ctx, s))
}

func ids(arts []Article) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.ID
	}
	return out
}

// runContract exercises the Store behaviour every implementation shares.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("SourceRoundTrip", func(t *testing.T) {
		s := newStore(t)
		seedCorpus(t, s)

		got, err := s.GetSource(ctx, "src-reuters")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "RTRS", got.ReferenceName)

		missing, err := s.GetSource(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("ArticleNeedsSource", func(t *testing.T) {
		s := newStore(t)
		err := s.AddArticle(ctx, Article{ID: "x", SourceID: "ghost"})
		assert.Error(t, err)
	})

	t.Run("QueryFilters", func(t *testing.T) {
		s := newStore(t)
		seedCorpus(t, s)

		tests := []struct {
			name string
			q    ArticleQuery
			want []string
		}{
			{"user scope newest first", ArticleQuery{UserID: "u1"}, []string{"a1", "a2", "a3"}},
			{"since published", ArticleQuery{UserID: "u1", Since: base.Add(-24 * time.Hour)}, []string{"a1"}},
			{"since ingested", ArticleQuery{UserID: "u1", Since: base.Add(-3 * time.Hour), DateField: DateIngested}, []string{"a1", "a2"}},
			{"until", ArticleQuery{UserID: "u1", Until: base.Add(-24 * time.Hour)}, []string{"a2", "a3"}},
			{"sources", ArticleQuery{UserID: "u1", SourceIDs: []string{"src-ft"}}, []string{"a2"}},
			{"orphaned", ArticleQuery{UserID: "u1", StoryStatus: StoryOrphaned}, []string{"a2", "a3"}},
			{"connected", ArticleQuery{UserID: "u1", StoryStatus: StoryConnected}, []string{"a1"}},
			{"min relevance", ArticleQuery{UserID: "u1", MinRelevance: 5}, []string{"a1", "a2"}},
			{"search is case-insensitive", ArticleQuery{UserID: "u1", Search: "CHIP"}, []string{"a1", "a3"}},
			{"search translated title", ArticleQuery{UserID: "u1", Search: "steady"}, []string{"a2"}},
			{"sentiment", ArticleQuery{UserID: "u1", Sentiment: "neutral"}, []string{"a2"}},
			{"tag substring", ArticleQuery{UserID: "u1", Tags: []string{"Chip"}}, []string{"a1"}},
			{"tag is case-sensitive", ArticleQuery{UserID: "u1", Tags: []string{"chips"}}, nil},
			{"all tags required", ArticleQuery{UserID: "u1", Tags: []string{"Chips", "Macro"}}, nil},
			{"entity", ArticleQuery{UserID: "u1", Entities: []string{"TSMC"}}, []string{"a1"}},
			{"relevance sort", ArticleQuery{SortBy: SortRelevance}, []string{"b1", "a1", "a2", "a3"}},
			{"limit", ArticleQuery{UserID: "u1", Limit: 2}, []string{"a1", "a2"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.QueryArticles(ctx, tt.q)
				require.NoError(t, err)
				if tt.want == nil {
					assert.Empty(t, got)
					return
				}
				assert.Equal(t, tt.want, ids(got))
			})
		}
	})

	t.Run("QueryFillsSource", func(t *testing.T) {
		s := newStore(t)
		seedCorpus(t, s)
		got, err := s.QueryArticles(ctx, ArticleQuery{UserID: "u1", Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Reuters", got[0].SourceName)
		assert.Equal(t, "RTRS", got[0].SourceReference)
		assert.Equal(t, []string{"Chips", "Trade"}, got[0].Tags)
		assert.True(t, got[0].PublishedAt.Equal(base.Add(-2*time.Hour)))
	})

	t.Run("GetArticlesKeepsOrder", func(t *testing.T) {
		s := newStore(t)
		seedCorpus(t, s)

		got, err := s.GetArticles(ctx, "u1", []string{"a3", "missing", "a1", "b1", "a3"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a3", "a1"}, ids(got))

		all, err := s.GetArticles(ctx, "", []string{"b1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, ids(all))
	})

	t.Run("RecordsAndPipelines", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, SavePrompt(ctx, s, PromptConfig{ID: "p1", UserID: "u1", Name: "Daily", PromptText: "Summarize", Model: "m"}))
		require.NoError(t, SaveFormatting(ctx, s, FormattingConfig{ID: "f1", UserID: "u1", Name: "Plain",
			StructureDefinition: "<p>{{.summary}}</p>", CitationType: "numeric_superscript",
			Parameters: map[string]any{"enclosure": "square_brackets"}}))

		p, err := LoadPrompt(ctx, s, "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, "Summarize", p.PromptText)
		assert.Equal(t, "Daily", p.Name)

		_, err = LoadPrompt(ctx, s, "u2", "p1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = LoadPrompt(ctx, s, "u1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		f, err := LoadFormatting(ctx, s, "", "f1")
		require.NoError(t, err)
		assert.Equal(t, "square_brackets", f.Parameters["enclosure"])

		recs, err := s.ListRecords(ctx, "u1", KindPrompt)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		var body map[string]any
		require.NoError(t, json.Unmarshal(recs[0].Data, &body))
		assert.Equal(t, "m", body["model"])

		pipe := Pipeline{ID: "pl1", UserID: "u1", Name: "Morning", PromptID: "p1",
			SourceConfig: map[string]any{"filter_date": "24h"}, CreatedAt: base}
		require.NoError(t, s.PutPipeline(ctx, pipe))
		pipe.Description = "updated"
		require.NoError(t, s.PutPipeline(ctx, pipe))

		got, err := s.GetPipeline(ctx, "pl1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "updated", got.Description)
		assert.Equal(t, "24h", got.SourceConfig["filter_date"])

		list, err := s.ListPipelines(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 1)
		none, err := s.ListPipelines(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ReportLifecycle", func(t *testing.T) {
		s := newStore(t)
		r := Report{ID: "r1", UserID: "u1", PipelineID: "pl1", Title: "Daily", Status: ReportProcessing,
			Content: "<p>x</p>", ArticleIDs: []string{"a1"}, CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.CreateReport(ctx, r))
		assert.Error(t, s.CreateReport(ctx, r), "duplicate create")

		r.Status = ReportCompleted
		r.DeliveryLog = append(r.DeliveryLog, DeliveryLogEntry{Channel: "EMAIL", Status: "failed", Error: "boom",
			Recipients: []string{"a@example.com"}, Timestamp: base})
		require.NoError(t, s.UpdateReport(ctx, r))
		assert.Error(t, s.UpdateReport(ctx, Report{ID: "ghost"}))

		got, err := s.GetReport(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, ReportCompleted, got.Status)
		require.Len(t, got.DeliveryLog, 1)
		assert.Equal(t, "boom", got.DeliveryLog[0].Error)
		assert.Equal(t, []string{"a1"}, got.ArticleIDs)

		require.NoError(t, s.CreateReport(ctx, Report{ID: "r2", UserID: "u1", Status: ReportProcessing, CreatedAt: base.Add(time.Hour)}))
		list, err := s.ListReports(ctx, ReportQuery{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "r2", list[0].ID)

		processing, err := s.ListReports(ctx, ReportQuery{Status: ReportProcessing})
		require.NoError(t, err)
		require.Len(t, processing, 1)
		assert.Equal(t, "r2", processing[0].ID)
	})

	t.Run("CachedStepLastWriteWins", func(t *testing.T) {
		s := newStore(t)
		miss, err := s.GetCachedStep(ctx, "u1", 2, "abc")
		require.NoError(t, err)
		assert.Nil(t, miss)

		require.NoError(t, s.PutCachedStep(ctx, CachedStep{UserID: "u1", Step: 2, Hash: "abc", Result: []byte(`{"v":1}`), CreatedAt: base}))
		require.NoError(t, s.PutCachedStep(ctx, CachedStep{UserID: "u1", Step: 2, Hash: "abc", Result: []byte(`{"v":2}`), CreatedAt: base}))

		hit, err := s.GetCachedStep(ctx, "u1", 2, "abc")
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.JSONEq(t, `{"v":2}`, string(hit.Result))

		other, err := s.GetCachedStep(ctx, "u2", 2, "abc")
		require.NoError(t, err)
		assert.Nil(t, other)

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.CachedSteps)
	})
}
