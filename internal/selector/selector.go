// Package selector turns a pipeline's declarative source filters into an
// article store query.
package selector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/dusk-indust/briefing/internal/store"
)

// windows are the relative date filters accepted in filter_date.
var windows = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"48h": 48 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// FilterConfig is the typed form of a pipeline's source_config.
type FilterConfig struct {
	FilterDate   string
	DateFrom     time.Time
	DateTo       time.Time
	DateField    store.DateField
	SourceIDs    []string
	StoryStatus  store.StoryStatus
	MinRelevance int
	Search       string
	Sentiment    string
	Tags         []string
	Entities     []string
	Sort         store.SortField
	Limit        int
}

// ParseFilters reads a loosely typed filter map. Numbers may arrive as
// strings and lists as comma-separated strings.
func ParseFilters(raw map[string]any) (FilterConfig, error) {
	var fc FilterConfig
	get := func(k string) string { return strings.TrimSpace(cast.ToString(raw[k])) }

	fc.FilterDate = get("filter_date")
	if fc.FilterDate != "" {
		if _, ok := windows[fc.FilterDate]; !ok {
			return fc, fmt.Errorf("selector: unknown filter_date %q", fc.FilterDate)
		}
	}

	var err error
	if fc.DateFrom, err = parseDate(get("date_from")); err != nil {
		return fc, fmt.Errorf("selector: date_from: %w", err)
	}
	if fc.DateTo, err = parseDate(get("date_to")); err != nil {
		return fc, fmt.Errorf("selector: date_to: %w", err)
	}

	switch f := get("date_field"); f {
	case "", "published", "published_at":
		fc.DateField = store.DatePublished
	case "ingested", "scraped", "scraped_at":
		fc.DateField = store.DateIngested
	default:
		return fc, fmt.Errorf("selector: unknown date_field %q", f)
	}

	switch s := get("story_status"); s {
	case "", "all", "any":
	case "orphaned":
		fc.StoryStatus = store.StoryOrphaned
	case "connected":
		fc.StoryStatus = store.StoryConnected
	default:
		return fc, fmt.Errorf("selector: unknown story_status %q", s)
	}

	if v, ok := raw["min_relevance"]; ok && v != nil && cast.ToString(v) != "" {
		if fc.MinRelevance, err = cast.ToIntE(v); err != nil {
			return fc, fmt.Errorf("selector: min_relevance: %w", err)
		}
	}
	if v, ok := raw["limit"]; ok && v != nil && cast.ToString(v) != "" {
		if fc.Limit, err = cast.ToIntE(v); err != nil {
			return fc, fmt.Errorf("selector: limit: %w", err)
		}
		if fc.Limit < 0 {
			return fc, fmt.Errorf("selector: limit must be positive, got %d", fc.Limit)
		}
	}

	fc.SourceIDs = toList(raw["source_ids"])
	fc.Tags = toList(raw["tags"])
	fc.Entities = toList(raw["entities"])
	fc.Search = get("search")
	fc.Sentiment = get("sentiment")

	switch s := get("sort"); s {
	case "", "published_at", "published", "date":
		fc.Sort = store.SortPublished
	case "relevance":
		fc.Sort = store.SortRelevance
	default:
		return fc, fmt.Errorf("selector: unknown sort %q", s)
	}
	return fc, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// toList accepts a list or a comma-separated string and drops blanks.
func toList(v any) []string {
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

// Query resolves fc against now. A relative window wins over date_from.
// An inclusive date_to given as a bare date covers the whole day.
func (fc FilterConfig) Query(userID string, now time.Time) store.ArticleQuery {
	q := store.ArticleQuery{
		UserID:       userID,
		DateField:    fc.DateField,
		SourceIDs:    fc.SourceIDs,
		StoryStatus:  fc.StoryStatus,
		MinRelevance: fc.MinRelevance,
		Search:       fc.Search,
		Sentiment:    fc.Sentiment,
		Tags:         fc.Tags,
		Entities:     fc.Entities,
		SortBy:       fc.Sort,
		Limit:        fc.Limit,
	}
	if d, ok := windows[fc.FilterDate]; ok {
		q.Since = now.Add(-d)
	} else {
		q.Since = fc.DateFrom
	}
	if !fc.DateTo.IsZero() {
		q.Until = fc.DateTo
		if fc.DateTo.Equal(fc.DateTo.Truncate(24 * time.Hour)) {
			q.Until = fc.DateTo.Add(24*time.Hour - time.Millisecond)
		}
	}
	return q
}

// Selector runs filter sets against an article store.
type Selector struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Selector {
	return &Selector{store: s, now: time.Now}
}

// WithClock returns a copy of s that resolves relative date windows
// against now.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	cp := *s
	cp.now = now
	return &cp
}

// Select parses raw and returns the matching articles for userID.
func (s *Selector) Select(ctx context.Context, userID string, raw map[string]any) ([]store.Article, error) {
	fc, err := ParseFilters(raw)
	if err != nil {
		return nil, err
	}
	return s.SelectFilters(ctx, userID, fc)
}

func (s *Selector) SelectFilters(ctx context.Context, userID string, fc FilterConfig) ([]store.Article, error) {
	arts, err := s.store.QueryArticles(ctx, fc.Query(userID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("selector: query articles: %w", err)
	}
	return arts, nil
}
