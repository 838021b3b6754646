package logging

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())

	bad := NewDefaultConfig()
	bad.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = NewDefaultConfig()
	bad.Level = "loud"
	assert.Error(t, bad.Validate())
}

func TestNewWithFile(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.File.Path = filepath.Join(t.TempDir(), "briefing.log")

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info(context.Background(), "hello")
	assert.NoError(t, l.Sync())
}

func TestContextFieldsCarryRun(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRun(context.Background(), RunInfo{RunID: "r1", PipelineID: "p1", UserID: "u1"})

	tl.Info(ctx, "stage complete", zap.String("stage", "select"))

	tl.AssertLogged(t, zapcore.InfoLevel, "stage complete")
	entries := tl.FilterMessage("stage complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r1", fields["run.id"])
	assert.Equal(t, "p1", fields["pipeline.id"])
	assert.Equal(t, "u1", fields["user.id"])
	assert.Equal(t, "select", fields["stage"])
}

func TestContextFieldsEmpty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}
