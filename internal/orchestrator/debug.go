package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/logging"
)

// DebugRecorder dumps stage inputs and outputs to disk. A nil recorder
// writes nothing.
type DebugRecorder struct {
	dir string
	log *logging.Logger
}

// NewDebugRecorder returns nil unless cfg is enabled.
func NewDebugRecorder(cfg DebugConfig, log *logging.Logger) *DebugRecorder {
	if !cfg.Enabled {
		return nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "briefing-debug")
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &DebugRecorder{dir: dir, log: log}
}

// RunDir is <dir>/<pipeline>/<run-id>.
func (d *DebugRecorder) RunDir(pipelineID, runID string) string {
	if d == nil {
		return ""
	}
	return filepath.Join(d.dir, safeSegment(pipelineID), runID)
}

// TestDir is <dir>/test/<step>_<timestamp>.
func (d *DebugRecorder) TestDir(step int, at time.Time) string {
	if d == nil {
		return ""
	}
	return filepath.Join(d.dir, "test", fmt.Sprintf("%d_%s", step, at.UTC().Format("20060102_150405")))
}

// Write stores v under dir/name. Strings and byte slices are written as is;
// anything else is encoded as indented JSON. Failures are logged only.
func (d *DebugRecorder) Write(ctx context.Context, dir, name string, v any) {
	if d == nil || dir == "" {
		return
	}
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		b, err := jsonAPI.MarshalIndent(v, "", "  ")
		if err != nil {
			d.log.Warn(ctx, "debug dump encode failed", zap.String("name", name), zap.Error(err))
			return
		}
		data = b
	}
	path := filepath.Join(dir, name)
	if err := writeOutputFile(path, data); err != nil {
		d.log.Warn(ctx, "debug dump failed", zap.String("path", path), zap.Error(err))
	}
}

// writeOutputFile writes data to the given path, creating directories as
// needed.
func writeOutputFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func safeSegment(s string) string {
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return filepath.Base(filepath.Clean("/" + s))
}
