package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/briefing/internal/store"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestParseFilters(t *testing.T) {
	fc, err := ParseFilters(map[string]any{
		"filter_date":   "48h",
		"source_ids":    "s1, s2,",
		"min_relevance": "6",
		"limit":         20.0,
		"tags":          []any{"AI", " Chips "},
		"story_status":  "orphaned",
		"sort":          "relevance",
		"date_field":    "ingested",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, fc.SourceIDs)
	assert.Equal(t, 6, fc.MinRelevance)
	assert.Equal(t, 20, fc.Limit)
	assert.Equal(t, []string{"AI", "Chips"}, fc.Tags)
	assert.Equal(t, store.StoryOrphaned, fc.StoryStatus)
	assert.Equal(t, store.SortRelevance, fc.Sort)
	assert.Equal(t, store.DateIngested, fc.DateField)

	q := fc.Query("u1", now)
	assert.Equal(t, now.Add(-48*time.Hour), q.Since)
	assert.True(t, q.Until.IsZero())
}

func TestParseFilters_Errors(t *testing.T) {
	tests := map[string]map[string]any{
		"window":     {"filter_date": "3d"},
		"date":       {"date_from": "yesterday"},
		"relevance":  {"min_relevance": "high"},
		"limit":      {"limit": -1},
		"sort":       {"sort": "title"},
		"story":      {"story_status": "lost"},
		"date field": {"date_field": "updated"},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFilters(raw)
			assert.Error(t, err)
		})
	}
}

func TestQuery_DateRange(t *testing.T) {
	fc, err := ParseFilters(map[string]any{"date_from": "2025-03-01", "date_to": "2025-03-05"})
	require.NoError(t, err)
	q := fc.Query("u1", now)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), q.Since)
	assert.Equal(t, time.Date(2025, 3, 5, 23, 59, 59, 999e6, time.UTC), q.Until)

	fc, err = ParseFilters(map[string]any{"date_to": "2025-03-05T10:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC), fc.Query("u1", now).Until)
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.AddSource(ctx, store.Source{ID: "s1", UserID: "u1", Name: "Wire"}))
	for _, a := range []store.Article{
		{ID: "fresh", SourceID: "s1", PublishedAt: now.Add(-time.Hour), Relevance: 3},
		{ID: "day-old", SourceID: "s1", PublishedAt: now.Add(-36 * time.Hour), Relevance: 9},
		{ID: "stale", SourceID: "s1", PublishedAt: now.Add(-8 * 24 * time.Hour), Relevance: 9},
	} {
		require.NoError(t, s.AddArticle(ctx, a))
	}

	sel := New(s).WithClock(func() time.Time { return now })

	got, err := sel.Select(ctx, "u1", map[string]any{"filter_date": "48h"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].ID)

	got, err = sel.Select(ctx, "u1", map[string]any{"filter_date": "7d", "sort": "relevance", "limit": 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "day-old", got[0].ID)

	got, err = sel.Select(ctx, "u2", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = sel.Select(ctx, "u1", map[string]any{"filter_date": "1y"})
	assert.Error(t, err)
}
