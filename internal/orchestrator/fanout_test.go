package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/briefing/internal/store"
)

func TestBatch_ResultsInInputOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutPipeline(ctx, store.Pipeline{
		ID: "p-sel", UserID: "u1", Name: "Select only", SourceConfig: map[string]any{"filter_date": "30d"},
	}))

	items := []BatchItem{
		{UserID: "u1", PipelineID: "p1"},
		{UserID: "u1", PipelineID: "missing"},
		{UserID: "u1", PipelineID: "p-sel"},
	}
	results := NewBatch(f.exec, 2, nil).Run(ctx, items)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, items[i], r.Item)
	}
	require.NoError(t, results[0].Err)
	assert.Equal(t, store.ReportCompleted, results[0].Summary.Status)
	assert.Equal(t, RunBatch, results[0].Summary.RunType)

	assert.True(t, IsValidation(results[1].Err))
	assert.Nil(t, results[1].Summary)

	require.NoError(t, results[2].Err)
	assert.Equal(t, 3, results[2].Summary.ArticleCount)

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "missing", failed[0].Item.PipelineID)

	reports, err := f.store.ListReports(ctx, store.ReportQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestBatch_ForwardsProgress(t *testing.T) {
	f := newFixture(t)

	var (
		mu       sync.Mutex
		finished int
	)
	onProgress := func(ev ProgressEvent) {
		if ev.Stage == StageComplete && ev.Status == ProgressComplete {
			mu.Lock()
			finished++
			mu.Unlock()
		}
	}

	items := []BatchItem{{UserID: "u1", PipelineID: "p1"}, {UserID: "u1", PipelineID: "p1"}}
	results := NewBatch(f.exec, 0, onProgress).Run(context.Background(), items)
	assert.Empty(t, Failed(results))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, finished)
	assert.NotEqual(t, results[0].Summary.ReportID, results[1].Summary.ReportID)
}

func TestBatch_Empty(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, NewBatch(f.exec, 4, nil).Run(context.Background(), nil))
}
