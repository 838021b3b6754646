package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --- Enums ---

// RecordKind classifies library records.
type RecordKind string

const (
	KindPrompt         RecordKind = "prompt"
	KindFormatting     RecordKind = "formatting"
	KindOutput         RecordKind = "output"
	KindDelivery       RecordKind = "delivery"
	KindSourceTemplate RecordKind = "source_template"
)

// ReportStatus is the lifecycle state of a Report.
type ReportStatus string

const (
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
)

// DateField selects which article timestamp a date window applies to.
type DateField string

const (
	DatePublished DateField = "published"
	DateIngested  DateField = "ingested"
)

// StoryStatus filters articles by whether they belong to a story cluster.
type StoryStatus string

const (
	StoryAny       StoryStatus = ""
	StoryOrphaned  StoryStatus = "orphaned"
	StoryConnected StoryStatus = "connected"
)

// SortField orders article query results, always descending.
type SortField string

const (
	SortPublished SortField = "published_at"
	SortRelevance SortField = "relevance"
)

// --- Models ---

// Source is a publication that articles are scraped from.
type Source struct {
	ID            string `json:"id" yaml:"id"`
	UserID        string `json:"user_id" yaml:"user_id"`
	Name          string `json:"name" yaml:"name"`
	ReferenceName string `json:"reference_name,omitempty" yaml:"reference_name,omitempty"`
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Article is an ingested, citable content unit. SourceName and
// SourceReference are filled from the owning Source on read.
type Article struct {
	ID              string    `json:"id" yaml:"id"`
	SourceID        string    `json:"source_id" yaml:"source_id"`
	StoryID         string    `json:"story_id,omitempty" yaml:"story_id,omitempty"`
	Title           string    `json:"title" yaml:"title"`
	TranslatedTitle string    `json:"translated_title,omitempty" yaml:"translated_title,omitempty"`
	URL             string    `json:"url" yaml:"url"`
	Snippet         string    `json:"content,omitempty" yaml:"snippet,omitempty"`
	Summary         string    `json:"ai_summary,omitempty" yaml:"summary,omitempty"`
	PublishedAt     time.Time `json:"published_at" yaml:"published_at"`
	ScrapedAt       time.Time `json:"scraped_at" yaml:"scraped_at"`
	Relevance       int       `json:"relevance" yaml:"relevance"`
	Sentiment       string    `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
	Tags            []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Entities        []string  `json:"entities,omitempty" yaml:"entities,omitempty"`

	SourceName      string `json:"source" yaml:"-"`
	SourceReference string `json:"source_reference,omitempty" yaml:"-"`
}

// DisplayTitle prefers the translated title.
func (a Article) DisplayTitle() string {
	if a.TranslatedTitle != "" {
		return a.TranslatedTitle
	}
	return a.Title
}

// ArticleQuery is a resolved article filter set. Zero values disable a filter.
type ArticleQuery struct {
	UserID       string
	Since        time.Time
	Until        time.Time
	DateField    DateField
	SourceIDs    []string
	StoryStatus  StoryStatus
	MinRelevance int
	Search       string
	Sentiment    string
	Tags         []string
	Entities     []string
	SortBy       SortField
	Limit        int
}

// Match reports whether a (owned by src) passes every filter of q.
func (q ArticleQuery) Match(a Article, src Source) bool {
	if q.UserID != "" && src.UserID != q.UserID {
		return false
	}
	ts := a.PublishedAt
	if q.DateField == DateIngested {
		ts = a.ScrapedAt
	}
	if !q.Since.IsZero() && ts.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && ts.After(q.Until) {
		return false
	}
	if len(q.SourceIDs) > 0 && !contains(q.SourceIDs, a.SourceID) {
		return false
	}
	switch q.StoryStatus {
	case StoryOrphaned:
		if a.StoryID != "" {
			return false
		}
	case StoryConnected:
		if a.StoryID == "" {
			return false
		}
	}
	if q.MinRelevance > 0 && a.Relevance < q.MinRelevance {
		return false
	}
	if q.Sentiment != "" && a.Sentiment != q.Sentiment {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		hit := false
		for _, field := range []string{a.Title, a.TranslatedTitle, a.Summary, a.Snippet} {
			if strings.Contains(strings.ToLower(field), needle) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	tagText, entityText := ListText(a.Tags), ListText(a.Entities)
	for _, tag := range q.Tags {
		if !strings.Contains(tagText, tag) {
			return false
		}
	}
	for _, ent := range q.Entities {
		if !strings.Contains(entityText, ent) {
			return false
		}
	}
	return true
}

// SortArticles orders articles the way q asks, newest or most relevant
// first, with the id as a stable tie breaker.
func (q ArticleQuery) SortArticles(arts []Article) {
	sort.SliceStable(arts, func(i, j int) bool {
		a, b := arts[i], arts[j]
		if q.SortBy == SortRelevance && a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
}

// ListText is the stored text form of a tag or entity list. Tag and entity
// filters are case-sensitive substring matches against it.
func ListText(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	return encodeColumn(items)
}

// Record is a library entry. Data holds the kind-specific body as JSON.
type Record struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Kind        RecordKind      `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Pipeline is the five-stage configuration producing one report per run.
type Pipeline struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	SourceConfig     map[string]any `json:"source_config"`
	SourceTemplateID string         `json:"source_template_id,omitempty"`
	PromptID         string         `json:"prompt_id,omitempty"`
	FormattingID     string         `json:"formatting_id,omitempty"`
	OutputID         string         `json:"output_config_id,omitempty"`
	DeliveryID       string         `json:"delivery_config_id,omitempty"`
	Schedule         string         `json:"schedule,omitempty"`
	ScheduleEnabled  bool           `json:"schedule_enabled"`
	CreatedAt        time.Time      `json:"created_at"`
}

// DeliveryLogEntry records one delivery attempt on a report.
type DeliveryLogEntry struct {
	Channel    string         `json:"channel"`
	Config     map[string]any `json:"config"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Error      string         `json:"error,omitempty"`
	Subject    string         `json:"subject"`
	Recipients []string       `json:"recipients"`
	CC         []string       `json:"cc"`
	BCC        []string       `json:"bcc"`
}

// Report is the durable result of a pipeline run.
type Report struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	PipelineID    string             `json:"pipeline_id,omitempty"`
	Title         string             `json:"title"`
	Status        ReportStatus       `json:"status"`
	Content       string             `json:"content"`
	ArticleIDs    []string           `json:"article_ids"`
	DeliveryLog   []DeliveryLogEntry `json:"delivery_log"`
	RunType       string             `json:"run_type,omitempty"`
	Configuration map[string]any     `json:"configuration,omitempty"`
	Meta          map[string]any     `json:"meta,omitempty"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ReportQuery filters ListReports. Results are newest first.
type ReportQuery struct {
	UserID     string
	PipelineID string
	Status     ReportStatus
	Limit      int
}

// Match reports whether r passes every filter of q.
func (q ReportQuery) Match(r Report) bool {
	return (q.UserID == "" || r.UserID == q.UserID) &&
		(q.PipelineID == "" || r.PipelineID == q.PipelineID) &&
		(q.Status == "" || r.Status == q.Status)
}

// CachedStep is a stored single-step test result.
type CachedStep struct {
	UserID    string    `json:"user_id"`
	Step      int       `json:"step"`
	Hash      string    `json:"hash"`
	Result    []byte    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats holds row counts for every table.
type Stats struct {
	Sources     int `json:"sources"`
	Articles    int `json:"articles"`
	Records     int `json:"records"`
	Pipelines   int `json:"pipelines"`
	Reports     int `json:"reports"`
	CachedSteps int `json:"cachedSteps"`
}

func cacheKey(userID string, step int, hash string) string {
	return userID + "|" + strconv.Itoa(step) + "|" + hash
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
