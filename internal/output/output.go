// Package output converts rendered reports into artifacts and writes them
// to a sink.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/store"
)

// DefaultDir is where artifacts go when no directory is configured.
const DefaultDir = "/tmp/reports"

// Sink stores artifact bytes at a path.
type Sink interface {
	WriteArtifact(ctx context.Context, data []byte, path string) error
}

// FileSink writes artifacts to the local filesystem.
type FileSink struct{}

func (FileSink) WriteArtifact(ctx context.Context, data []byte, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// Artifact describes a written output file.
type Artifact struct {
	Path string `json:"file_path"`
	Type string `json:"type"`
}

// Writer runs the output stage: choose a converter, name the file, write it.
type Writer struct {
	sink Sink
	dir  string
	log  *logging.Logger
	now  func() time.Time
}

// NewWriter creates a Writer rooted at dir (DefaultDir when empty).
func NewWriter(sink Sink, dir string, log *logging.Logger) *Writer {
	if sink == nil {
		sink = FileSink{}
	}
	if dir == "" {
		dir = DefaultDir
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Writer{sink: sink, dir: dir, log: log, now: time.Now}
}

// WithClock returns a copy of w that reads time from now.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	cp := *w
	cp.now = now
	return &cp
}

// Request is one output stage invocation.
type Request struct {
	ReportID     string
	PipelineName string
	Document     Document
}

// Filename resolves the artifact base name (without extension) for cfg.
// A missing or failing filename_template yields report_<id>.
func (w *Writer) Filename(ctx context.Context, cfg store.OutputConfig, req Request) string {
	fallback := "report_" + req.ReportID
	tpl := cast.ToString(cfg.Parameters["filename_template"])
	if tpl == "" {
		return fallback
	}
	name, err := RenderFilename(tpl, NewFilenameData(req.Document.Title, req.PipelineName, w.now()))
	if err != nil {
		w.log.Error(ctx, "filename template failed", zap.Error(err))
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}

// Write converts req.Document per cfg and writes it to the sink.
func (w *Writer) Write(ctx context.Context, cfg store.OutputConfig, req Request) (*Artifact, error) {
	conv, err := ConverterFor(cfg.ConverterType)
	if err != nil {
		return nil, err
	}
	data, err := conv.Convert(ctx, req.Document)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(w.dir, w.Filename(ctx, cfg, req)+"."+conv.Ext())
	if err := w.sink.WriteArtifact(ctx, data, path); err != nil {
		return nil, err
	}
	w.log.Info(ctx, "artifact written",
		zap.String("path", path),
		zap.String("type", conv.Ext()),
		zap.Int("bytes", len(data)),
	)
	return &Artifact{Path: path, Type: conv.Ext()}, nil
}
