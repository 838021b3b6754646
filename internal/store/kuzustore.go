//go:build cgo

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements Store on an embedded KuzuDB database.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
// A single connection is shared; mu serializes access to it.
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore persisted at dbPath. KuzuDB creates
// the leaf directory itself; the parent must exist.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database %s: %w", path, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

// Timestamps are stored as INT64 unix milliseconds, lists and maps as JSON
// strings. Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Source(
		id STRING,
		user_id STRING,
		name STRING,
		reference_name STRING,
		url STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Article(
		id STRING,
		source_id STRING,
		story_id STRING,
		title STRING,
		translated_title STRING,
		url STRING,
		snippet STRING,
		summary STRING,
		published_at INT64,
		scraped_at INT64,
		relevance INT64,
		sentiment STRING,
		tags STRING,
		entities STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS LibraryRecord(
		key STRING,
		id STRING,
		user_id STRING,
		kind STRING,
		name STRING,
		description STRING,
		data STRING,
		created_at INT64,
		updated_at INT64,
		PRIMARY KEY(key)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Pipeline(
		id STRING,
		user_id STRING,
		name STRING,
		description STRING,
		source_config STRING,
		source_template_id STRING,
		prompt_id STRING,
		formatting_id STRING,
		output_id STRING,
		delivery_id STRING,
		schedule STRING,
		schedule_enabled BOOLEAN,
		created_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Report(
		id STRING,
		user_id STRING,
		pipeline_id STRING,
		title STRING,
		status STRING,
		content STRING,
		article_ids STRING,
		delivery_log STRING,
		run_type STRING,
		configuration STRING,
		meta STRING,
		error STRING,
		created_at INT64,
		updated_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS CachedStep(
		key STRING,
		user_id STRING,
		step INT64,
		hash STRING,
		result STRING,
		created_at INT64,
		PRIMARY KEY(key)
	)`,
	`CREATE REL TABLE IF NOT EXISTS PUBLISHED_BY(FROM Article TO Source)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Sources and articles ----------

func (s *KuzuStore) AddSource(_ context.Context, src Source) error {
	return s.exec(
		`MERGE (s:Source {id: $id})
		SET s.user_id = $user, s.name = $name, s.reference_name = $ref, s.url = $url`,
		map[string]any{
			"id":   src.ID,
			"user": src.UserID,
			"name": src.Name,
			"ref":  src.ReferenceName,
			"url":  src.URL,
		},
	)
}

func (s *KuzuStore) GetSource(_ context.Context, id string) (*Source, error) {
	rows, err := s.query(
		"MATCH (s:Source {id: $id}) RETURN s.id, s.user_id, s.name, s.reference_name, s.url",
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &Source{
		ID:            toString(r[0]),
		UserID:        toString(r[1]),
		Name:          toString(r[2]),
		ReferenceName: toString(r[3]),
		URL:           toString(r[4]),
	}, nil
}

func (s *KuzuStore) AddArticle(ctx context.Context, art Article) error {
	src, err := s.GetSource(ctx, art.SourceID)
	if err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("kuzu: add article %s: source %s not found", art.ID, art.SourceID)
	}
	return s.exec(
		`MATCH (s:Source {id: $sid})
		CREATE (a:Article {
			id: $id,
			source_id: $sid,
			story_id: $story,
			title: $title,
			translated_title: $ttitle,
			url: $url,
			snippet: $snippet,
			summary: $summary,
			published_at: $pub,
			scraped_at: $scraped,
			relevance: $rel,
			sentiment: $sent,
			tags: $tags,
			entities: $ents
		})-[:PUBLISHED_BY]->(s)`,
		map[string]any{
			"sid":     art.SourceID,
			"id":      art.ID,
			"story":   art.StoryID,
			"title":   art.Title,
			"ttitle":  art.TranslatedTitle,
			"url":     art.URL,
			"snippet": art.Snippet,
			"summary": art.Summary,
			"pub":     toMillis(art.PublishedAt),
			"scraped": toMillis(art.ScrapedAt),
			"rel":     int64(art.Relevance),
			"sent":    art.Sentiment,
			"tags":    ListText(art.Tags),
			"ents":    ListText(art.Entities),
		},
	)
}

const articleColumns = `a.id, a.source_id, a.story_id, a.title, a.translated_title, a.url,
	a.snippet, a.summary, a.published_at, a.scraped_at, a.relevance, a.sentiment,
	a.tags, a.entities, s.name, s.reference_name`

// QueryArticles translates q into a single MATCH. Every value is bound as a
// parameter; only the LIMIT literal and generated parameter names are
// formatted into the statement text.
func (s *KuzuStore) QueryArticles(_ context.Context, q ArticleQuery) ([]Article, error) {
	var where []string
	params := map[string]any{}
	add := func(clause, name string, v any) {
		where = append(where, clause)
		params[name] = v
	}

	if q.UserID != "" {
		add("s.user_id = $user", "user", q.UserID)
	}
	dateCol := "a.published_at"
	if q.DateField == DateIngested {
		dateCol = "a.scraped_at"
	}
	if !q.Since.IsZero() {
		add(dateCol+" >= $since", "since", toMillis(q.Since))
	}
	if !q.Until.IsZero() {
		add(dateCol+" <= $until", "until", toMillis(q.Until))
	}
	if len(q.SourceIDs) > 0 {
		ors := make([]string, len(q.SourceIDs))
		for i, id := range q.SourceIDs {
			name := "src" + strconv.Itoa(i)
			ors[i] = "a.source_id = $" + name
			params[name] = id
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	switch q.StoryStatus {
	case StoryOrphaned:
		where = append(where, `a.story_id = ''`)
	case StoryConnected:
		where = append(where, `a.story_id <> ''`)
	}
	if q.MinRelevance > 0 {
		add("a.relevance >= $minrel", "minrel", int64(q.MinRelevance))
	}
	if q.Sentiment != "" {
		add("a.sentiment = $sent", "sent", q.Sentiment)
	}
	if q.Search != "" {
		add(`(lower(a.title) CONTAINS $q OR lower(a.translated_title) CONTAINS $q
			OR lower(a.summary) CONTAINS $q OR lower(a.snippet) CONTAINS $q)`,
			"q", strings.ToLower(q.Search))
	}
	for i, tag := range q.Tags {
		name := "tag" + strconv.Itoa(i)
		add("a.tags CONTAINS $"+name, name, tag)
	}
	for i, ent := range q.Entities {
		name := "ent" + strconv.Itoa(i)
		add("a.entities CONTAINS $"+name, name, ent)
	}

	var b strings.Builder
	b.WriteString("MATCH (a:Article)-[:PUBLISHED_BY]->(s:Source)")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" RETURN ")
	b.WriteString(articleColumns)
	if q.SortBy == SortRelevance {
		b.WriteString(" ORDER BY a.relevance DESC, a.published_at DESC, a.id")
	} else {
		b.WriteString(" ORDER BY a.published_at DESC, a.id")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	rows, err := s.query(b.String(), params)
	if err != nil {
		return nil, err
	}
	out := make([]Article, 0, len(rows))
	for _, r := range rows {
		a, err := rowToArticle(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *KuzuStore) GetArticles(_ context.Context, userID string, ids []string) ([]Article, error) {
	out := make([]Article, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		rows, err := s.query(
			"MATCH (a:Article {id: $id})-[:PUBLISHED_BY]->(s:Source) RETURN "+articleColumns+", s.user_id",
			map[string]any{"id": id},
		)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		if userID != "" && toString(rows[0][16]) != userID {
			continue
		}
		a, err := rowToArticle(rows[0])
		if err != nil {
			return nil, err
		}
		seen[id] = true
		out = append(out, a)
	}
	return out, nil
}

// ---------- Library records and pipelines ----------

func (s *KuzuStore) PutRecord(_ context.Context, rec Record) error {
	data := string(rec.Data)
	if data == "" {
		data = "{}"
	}
	return s.exec(
		`MERGE (r:LibraryRecord {key: $key})
		SET r.id = $id, r.user_id = $user, r.kind = $kind, r.name = $name,
			r.description = $desc, r.data = $data, r.created_at = $created, r.updated_at = $updated`,
		map[string]any{
			"key":     string(rec.Kind) + "/" + rec.ID,
			"id":      rec.ID,
			"user":    rec.UserID,
			"kind":    string(rec.Kind),
			"name":    rec.Name,
			"desc":    rec.Description,
			"data":    data,
			"created": toMillis(rec.CreatedAt),
			"updated": toMillis(rec.UpdatedAt),
		},
	)
}

const recordColumns = "r.id, r.user_id, r.kind, r.name, r.description, r.data, r.created_at, r.updated_at"

func (s *KuzuStore) GetRecord(_ context.Context, kind RecordKind, id string) (*Record, error) {
	rows, err := s.query(
		"MATCH (r:LibraryRecord {key: $key}) RETURN "+recordColumns,
		map[string]any{"key": string(kind) + "/" + id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rowToRecord(rows[0])
	return &rec, nil
}

func (s *KuzuStore) ListRecords(_ context.Context, userID string, kind RecordKind) ([]Record, error) {
	cypher := "MATCH (r:LibraryRecord) WHERE r.kind = $kind"
	params := map[string]any{"kind": string(kind)}
	if userID != "" {
		cypher += " AND r.user_id = $user"
		params["user"] = userID
	}
	rows, err := s.query(cypher+" RETURN "+recordColumns+" ORDER BY r.name, r.id", params)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRecord(r))
	}
	return out, nil
}

func (s *KuzuStore) PutPipeline(_ context.Context, p Pipeline) error {
	return s.exec(
		`MERGE (p:Pipeline {id: $id})
		SET p.user_id = $user, p.name = $name, p.description = $desc,
			p.source_config = $srccfg, p.source_template_id = $tmpl,
			p.prompt_id = $prompt, p.formatting_id = $fmt, p.output_id = $out,
			p.delivery_id = $delivery, p.schedule = $sched,
			p.schedule_enabled = $enabled, p.created_at = $created`,
		map[string]any{
			"id":       p.ID,
			"user":     p.UserID,
			"name":     p.Name,
			"desc":     p.Description,
			"srccfg":   encodeColumn(p.SourceConfig),
			"tmpl":     p.SourceTemplateID,
			"prompt":   p.PromptID,
			"fmt":      p.FormattingID,
			"out":      p.OutputID,
			"delivery": p.DeliveryID,
			"sched":    p.Schedule,
			"enabled":  p.ScheduleEnabled,
			"created":  toMillis(p.CreatedAt),
		},
	)
}

const pipelineColumns = `p.id, p.user_id, p.name, p.description, p.source_config,
	p.source_template_id, p.prompt_id, p.formatting_id, p.output_id, p.delivery_id,
	p.schedule, p.schedule_enabled, p.created_at`

func (s *KuzuStore) GetPipeline(_ context.Context, id string) (*Pipeline, error) {
	rows, err := s.query(
		"MATCH (p:Pipeline {id: $id}) RETURN "+pipelineColumns,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p, err := rowToPipeline(rows[0])
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *KuzuStore) ListPipelines(_ context.Context, userID string) ([]Pipeline, error) {
	cypher := "MATCH (p:Pipeline)"
	params := map[string]any{}
	if userID != "" {
		cypher += " WHERE p.user_id = $user"
		params["user"] = userID
	}
	rows, err := s.query(cypher+" RETURN "+pipelineColumns+" ORDER BY p.name, p.id", params)
	if err != nil {
		return nil, err
	}
	out := make([]Pipeline, 0, len(rows))
	for _, r := range rows {
		p, err := rowToPipeline(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ---------- Reports ----------

func reportParams(r Report) map[string]any {
	return map[string]any{
		"id":       r.ID,
		"user":     r.UserID,
		"pipeline": r.PipelineID,
		"title":    r.Title,
		"status":   string(r.Status),
		"content":  r.Content,
		"arts":     encodeColumn(r.ArticleIDs),
		"dlog":     encodeColumn(r.DeliveryLog),
		"runtype":  r.RunType,
		"cfg":      encodeColumn(r.Configuration),
		"meta":     encodeColumn(r.Meta),
		"err":      r.Error,
		"created":  toMillis(r.CreatedAt),
		"updated":  toMillis(r.UpdatedAt),
	}
}

func (s *KuzuStore) CreateReport(ctx context.Context, r Report) error {
	existing, err := s.GetReport(ctx, r.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("kuzu: report %s already exists", r.ID)
	}
	return s.exec(
		`CREATE (r:Report {
			id: $id, user_id: $user, pipeline_id: $pipeline, title: $title,
			status: $status, content: $content, article_ids: $arts,
			delivery_log: $dlog, run_type: $runtype, configuration: $cfg,
			meta: $meta, error: $err, created_at: $created, updated_at: $updated
		})`,
		reportParams(r),
	)
}

func (s *KuzuStore) UpdateReport(ctx context.Context, r Report) error {
	existing, err := s.GetReport(ctx, r.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("kuzu: report %s not found", r.ID)
	}
	return s.exec(
		`MATCH (r:Report {id: $id})
		SET r.user_id = $user, r.pipeline_id = $pipeline, r.title = $title,
			r.status = $status, r.content = $content, r.article_ids = $arts,
			r.delivery_log = $dlog, r.run_type = $runtype, r.configuration = $cfg,
			r.meta = $meta, r.error = $err, r.created_at = $created, r.updated_at = $updated`,
		reportParams(r),
	)
}

const reportColumns = `r.id, r.user_id, r.pipeline_id, r.title, r.status, r.content,
	r.article_ids, r.delivery_log, r.run_type, r.configuration, r.meta, r.error,
	r.created_at, r.updated_at`

func (s *KuzuStore) GetReport(_ context.Context, id string) (*Report, error) {
	rows, err := s.query(
		"MATCH (r:Report {id: $id}) RETURN "+reportColumns,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r, err := rowToReport(rows[0])
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *KuzuStore) ListReports(_ context.Context, q ReportQuery) ([]Report, error) {
	var where []string
	params := map[string]any{}
	if q.UserID != "" {
		where = append(where, "r.user_id = $user")
		params["user"] = q.UserID
	}
	if q.PipelineID != "" {
		where = append(where, "r.pipeline_id = $pipeline")
		params["pipeline"] = q.PipelineID
	}
	if q.Status != "" {
		where = append(where, "r.status = $status")
		params["status"] = string(q.Status)
	}
	cypher := "MATCH (r:Report)"
	if len(where) > 0 {
		cypher += " WHERE " + strings.Join(where, " AND ")
	}
	cypher += " RETURN " + reportColumns + " ORDER BY r.created_at DESC, r.id"
	if q.Limit > 0 {
		cypher += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	rows, err := s.query(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(rows))
	for _, r := range rows {
		rep, err := rowToReport(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// ---------- Step cache ----------

func (s *KuzuStore) GetCachedStep(_ context.Context, userID string, step int, hash string) (*CachedStep, error) {
	rows, err := s.query(
		"MATCH (c:CachedStep {key: $key}) RETURN c.result, c.created_at",
		map[string]any{"key": cacheKey(userID, step, hash)},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &CachedStep{
		UserID:    userID,
		Step:      step,
		Hash:      hash,
		Result:    []byte(toString(rows[0][0])),
		CreatedAt: fromMillis(rows[0][1]),
	}, nil
}

func (s *KuzuStore) PutCachedStep(_ context.Context, c CachedStep) error {
	return s.exec(
		`MERGE (c:CachedStep {key: $key})
		SET c.user_id = $user, c.step = $step, c.hash = $hash,
			c.result = $result, c.created_at = $created`,
		map[string]any{
			"key":     cacheKey(c.UserID, c.Step, c.Hash),
			"user":    c.UserID,
			"step":    int64(c.Step),
			"hash":    c.Hash,
			"result":  string(c.Result),
			"created": toMillis(c.CreatedAt),
		},
	)
}

// Stats returns row counts of all node tables.
func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	var st Stats
	for _, t := range []struct {
		table string
		dst   *int
	}{
		{"Source", &st.Sources},
		{"Article", &st.Articles},
		{"LibraryRecord", &st.Records},
		{"Pipeline", &st.Pipelines},
		{"Report", &st.Reports},
		{"CachedStep", &st.CachedSteps},
	} {
		n, err := s.countTable(t.table)
		if err != nil {
			return nil, err
		}
		*t.dst = n
	}
	return &st, nil
}

// ---------- Internal helpers ----------

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res *kuzu.QueryResult
	var err error
	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// countTable returns the number of rows in a node table.
func (s *KuzuStore) countTable(table string) (int, error) {
	// Table name is a fixed internal constant, not user input.
	rows, err := s.query(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// rowToArticle converts a row selected with articleColumns.
func rowToArticle(r []any) (Article, error) {
	a := Article{
		ID:              toString(r[0]),
		SourceID:        toString(r[1]),
		StoryID:         toString(r[2]),
		Title:           toString(r[3]),
		TranslatedTitle: toString(r[4]),
		URL:             toString(r[5]),
		Snippet:         toString(r[6]),
		Summary:         toString(r[7]),
		PublishedAt:     fromMillis(r[8]),
		ScrapedAt:       fromMillis(r[9]),
		Relevance:       toInt(r[10]),
		Sentiment:       toString(r[11]),
		SourceName:      toString(r[14]),
		SourceReference: toString(r[15]),
	}
	if err := decodeColumn("tags", toString(r[12]), &a.Tags); err != nil {
		return Article{}, err
	}
	if err := decodeColumn("entities", toString(r[13]), &a.Entities); err != nil {
		return Article{}, err
	}
	if len(a.Tags) == 0 {
		a.Tags = nil
	}
	if len(a.Entities) == 0 {
		a.Entities = nil
	}
	return a, nil
}

func rowToRecord(r []any) Record {
	return Record{
		ID:          toString(r[0]),
		UserID:      toString(r[1]),
		Kind:        RecordKind(toString(r[2])),
		Name:        toString(r[3]),
		Description: toString(r[4]),
		Data:        []byte(toString(r[5])),
		CreatedAt:   fromMillis(r[6]),
		UpdatedAt:   fromMillis(r[7]),
	}
}

func rowToPipeline(r []any) (Pipeline, error) {
	p := Pipeline{
		ID:               toString(r[0]),
		UserID:           toString(r[1]),
		Name:             toString(r[2]),
		Description:      toString(r[3]),
		SourceTemplateID: toString(r[5]),
		PromptID:         toString(r[6]),
		FormattingID:     toString(r[7]),
		OutputID:         toString(r[8]),
		DeliveryID:       toString(r[9]),
		Schedule:         toString(r[10]),
		ScheduleEnabled:  toBool(r[11]),
		CreatedAt:        fromMillis(r[12]),
	}
	if err := decodeColumn("source_config", toString(r[4]), &p.SourceConfig); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

func rowToReport(r []any) (Report, error) {
	rep := Report{
		ID:         toString(r[0]),
		UserID:     toString(r[1]),
		PipelineID: toString(r[2]),
		Title:      toString(r[3]),
		Status:     ReportStatus(toString(r[4])),
		Content:    toString(r[5]),
		RunType:    toString(r[8]),
		Error:      toString(r[11]),
		CreatedAt:  fromMillis(r[12]),
		UpdatedAt:  fromMillis(r[13]),
	}
	columns := []struct {
		name string
		idx  int
		dst  any
	}{
		{"article_ids", 6, &rep.ArticleIDs},
		{"delivery_log", 7, &rep.DeliveryLog},
		{"configuration", 9, &rep.Configuration},
		{"meta", 10, &rep.Meta},
	}
	for _, c := range columns {
		if err := decodeColumn(c.name, toString(r[c.idx]), c.dst); err != nil {
			return Report{}, fmt.Errorf("report %s: %w", rep.ID, err)
		}
	}
	return rep, nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, bool, string).
// These helpers safely coerce any -> concrete type.

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v any) time.Time {
	ms := toInt(v)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func openKuzuStore(path string) (Store, error) {
	if path == "" || path == ":memory:" {
		return NewKuzuStore()
	}
	return NewKuzuFileStore(path)
}
