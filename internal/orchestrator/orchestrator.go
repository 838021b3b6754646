package orchestrator

import (
	"time"

	"github.com/dusk-indust/briefing/internal/output"
	"github.com/dusk-indust/briefing/internal/store"
)

// Stage identifies a pipeline stage.
type Stage int

const (
	StageSourceSelect Stage = iota
	StageContentGenerate
	StageCitationReconcile
	StageTemplateRender
	StageOutputConvert
	StageDeliver
	StageComplete
)

func (s Stage) String() string {
	names := [...]string{
		"source_select",
		"content_generate",
		"citation_reconcile",
		"template_render",
		"output_convert",
		"deliver",
		"complete",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Run types recorded on reports.
const (
	RunManual    = "manual"
	RunScheduled = "scheduled"
	RunBatch     = "batch"
)

// ProgressEvent is emitted while a run executes.
type ProgressEvent struct {
	RunID   string
	Stage   Stage
	Status  ProgressStatus
	Message string
}

// ProgressStatus is the state of a stage within a run.
type ProgressStatus string

const (
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressSkipped  ProgressStatus = "skipped"
	ProgressFailed   ProgressStatus = "failed"
)

// StageState is the recorded outcome of one stage.
type StageState struct {
	Stage    Stage          `json:"-"`
	Name     string         `json:"stage"`
	Status   ProgressStatus `json:"status"`
	Duration time.Duration  `json:"duration_ns"`
	Error    string         `json:"error,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// RunOptions tunes a single run.
type RunOptions struct {
	// RunType is manual when empty.
	RunType string
	// Progress receives stage events. It may be nil.
	Progress *ProgressReporter
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID        string                  `json:"run_id"`
	PipelineID   string                  `json:"pipeline_id"`
	PipelineName string                  `json:"pipeline_name"`
	ReportID     string                  `json:"report_id"`
	Title        string                  `json:"title"`
	Status       store.ReportStatus      `json:"status"`
	RunType      string                  `json:"run_type"`
	ArticleCount int                     `json:"article_count"`
	Artifact     *output.Artifact        `json:"artifact,omitempty"`
	Delivery     *store.DeliveryLogEntry `json:"delivery,omitempty"`
	Stages       []StageState            `json:"stages"`
	StartedAt    time.Time               `json:"started_at"`
	Duration     time.Duration           `json:"duration_ns"`
}

// Stage returns the recorded state of st, if it ran or was skipped.
func (s *RunSummary) Stage(st Stage) (StageState, bool) {
	for _, state := range s.Stages {
		if state.Stage == st {
			return state, true
		}
	}
	return StageState{}, false
}
