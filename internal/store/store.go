// Package store persists everything the report pipeline reads and writes:
// sources and articles, library records, pipelines, reports and cached
// single-step results.
package store

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Store is the persistence interface used by the pipeline.
// Implementations: KuzuStore (production), MemStore (testing and dev).
// Get methods return (nil, nil) when the record does not exist.
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error

	// Article corpus. Written by ingestion; read by the source selector.
	AddSource(ctx context.Context, src Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	AddArticle(ctx context.Context, art Article) error
	QueryArticles(ctx context.Context, q ArticleQuery) ([]Article, error)
	// GetArticles returns the articles with the given ids in the order the
	// ids were given. Unknown ids are skipped. An empty userID disables the
	// ownership check.
	GetArticles(ctx context.Context, userID string, ids []string) ([]Article, error)

	// Library records and pipelines.
	PutRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, kind RecordKind, id string) (*Record, error)
	ListRecords(ctx context.Context, userID string, kind RecordKind) ([]Record, error)
	PutPipeline(ctx context.Context, p Pipeline) error
	GetPipeline(ctx context.Context, id string) (*Pipeline, error)
	ListPipelines(ctx context.Context, userID string) ([]Pipeline, error)

	// Reports.
	CreateReport(ctx context.Context, r Report) error
	UpdateReport(ctx context.Context, r Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, q ReportQuery) ([]Report, error)

	// Step cache. Puts on an existing key overwrite it.
	GetCachedStep(ctx context.Context, userID string, step int, hash string) (*CachedStep, error)
	PutCachedStep(ctx context.Context, c CachedStep) error

	Stats(ctx context.Context) (*Stats, error)
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
