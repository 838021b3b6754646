package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and local development.
type MemStore struct {
	mu        sync.RWMutex
	sources   map[string]Source
	articles  map[string]Article
	records   map[string]Record
	pipelines map[string]Pipeline
	reports   map[string]Report
	steps     map[string]CachedStep
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sources:   make(map[string]Source),
		articles:  make(map[string]Article),
		records:   make(map[string]Record),
		pipelines: make(map[string]Pipeline),
		reports:   make(map[string]Report),
		steps:     make(map[string]CachedStep),
	}
}

func (m *MemStore) Close() error                      { return nil }
func (m *MemStore) InitSchema(_ context.Context) error { return nil }

func (m *MemStore) AddSource(_ context.Context, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.ID] = src
	return nil
}

func (m *MemStore) GetSource(_ context.Context, id string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[id]
	if !ok {
		return nil, nil
	}
	return &src, nil
}

func (m *MemStore) AddArticle(_ context.Context, art Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[art.SourceID]; !ok {
		return fmt.Errorf("memstore: add article %s: source %s not found", art.ID, art.SourceID)
	}
	art.Tags = append([]string(nil), art.Tags...)
	art.Entities = append([]string(nil), art.Entities...)
	m.articles[art.ID] = art
	return nil
}

// withSource fills the denormalized source fields of a.
func (m *MemStore) withSource(a Article) (Article, Source) {
	src := m.sources[a.SourceID]
	a.SourceName = src.Name
	a.SourceReference = src.ReferenceName
	return a, src
}

func (m *MemStore) QueryArticles(_ context.Context, q ArticleQuery) ([]Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Article
	for _, a := range m.articles {
		a, src := m.withSource(a)
		if q.Match(a, src) {
			out = append(out, a)
		}
	}
	q.SortArticles(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemStore) GetArticles(_ context.Context, userID string, ids []string) ([]Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Article, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		a, ok := m.articles[id]
		if !ok || seen[id] {
			continue
		}
		a, src := m.withSource(a)
		if userID != "" && src.UserID != userID {
			continue
		}
		seen[id] = true
		out = append(out, a)
	}
	return out, nil
}

func (m *MemStore) PutRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[string(rec.Kind)+"/"+rec.ID] = rec
	return nil
}

func (m *MemStore) GetRecord(_ context.Context, kind RecordKind, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[string(kind)+"/"+id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemStore) ListRecords(_ context.Context, userID string, kind RecordKind) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if rec.Kind == kind && (userID == "" || rec.UserID == userID) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) PutPipeline(_ context.Context, p Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[p.ID] = p
	return nil
}

func (m *MemStore) GetPipeline(_ context.Context, id string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemStore) ListPipelines(_ context.Context, userID string) ([]Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Pipeline
	for _, p := range m.pipelines {
		if userID == "" || p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) CreateReport(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; ok {
		return fmt.Errorf("memstore: report %s already exists", r.ID)
	}
	m.reports[r.ID] = r
	return nil
}

func (m *MemStore) UpdateReport(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; !ok {
		return fmt.Errorf("memstore: report %s not found", r.ID)
	}
	m.reports[r.ID] = r
	return nil
}

func (m *MemStore) GetReport(_ context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemStore) ListReports(_ context.Context, q ReportQuery) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Report
	for _, r := range m.reports {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemStore) GetCachedStep(_ context.Context, userID string, step int, hash string) (*CachedStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.steps[cacheKey(userID, step, hash)]
	if !ok {
		return nil, nil
	}
	c.Result = append([]byte(nil), c.Result...)
	return &c, nil
}

func (m *MemStore) PutCachedStep(_ context.Context, c CachedStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Result = append([]byte(nil), c.Result...)
	m.steps[cacheKey(c.UserID, c.Step, c.Hash)] = c
	return nil
}

func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		Sources:     len(m.sources),
		Articles:    len(m.articles),
		Records:     len(m.records),
		Pipelines:   len(m.pipelines),
		Reports:     len(m.reports),
		CachedSteps: len(m.steps),
	}, nil
}
