package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchItem names one pipeline to run.
type BatchItem struct {
	UserID     string `json:"user_id"`
	PipelineID string `json:"pipeline_id"`
}

// BatchResult holds the outcome of a single BatchItem.
type BatchResult struct {
	Item    BatchItem   `json:"item"`
	Summary *RunSummary `json:"summary,omitempty"`
	// Err is non-nil if the run failed validation or could not persist its
	// report.
	Err error `json:"-"`
}

// Batch runs independent pipelines concurrently. A failing pipeline never
// cancels its siblings.
type Batch struct {
	exec       *Executor
	limit      int
	onProgress func(ProgressEvent)
}

// NewBatch creates a Batch that runs at most limit pipelines at once; zero
// means no limit. onProgress is called from each run's goroutine; it may be
// nil.
func NewBatch(exec *Executor, limit int, onProgress func(ProgressEvent)) *Batch {
	return &Batch{exec: exec, limit: limit, onProgress: onProgress}
}

// Run executes every item and returns one result per item, in input order.
func (b *Batch) Run(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	var g errgroup.Group
	if b.limit > 0 {
		g.SetLimit(b.limit)
	}

	for i, item := range items {
		g.Go(func() error {
			opts := RunOptions{RunType: RunBatch}
			var done chan struct{}
			if b.onProgress != nil {
				opts.Progress = NewProgressReporter()
				done = make(chan struct{})
				go func() {
					defer close(done)
					for ev := range opts.Progress.Subscribe() {
						b.onProgress(ev)
					}
				}()
			}

			summary, err := b.exec.Run(ctx, item.UserID, item.PipelineID, opts)
			results[i] = BatchResult{Item: item, Summary: summary, Err: err}

			if opts.Progress != nil {
				opts.Progress.Close()
				<-done
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Failed returns the results that carry an error.
func Failed(results []BatchResult) []BatchResult {
	var out []BatchResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
