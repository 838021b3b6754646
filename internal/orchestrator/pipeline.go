package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/citation"
	"github.com/dusk-indust/briefing/internal/content"
	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/generate"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/metrics"
	"github.com/dusk-indust/briefing/internal/output"
	"github.com/dusk-indust/briefing/internal/render"
	"github.com/dusk-indust/briefing/internal/selector"
	"github.com/dusk-indust/briefing/internal/stepcache"
	"github.com/dusk-indust/briefing/internal/store"
)

const tracerName = "github.com/dusk-indust/briefing/internal/orchestrator"

// Executor runs pipelines end to end and single stages in test mode.
type Executor struct {
	store      store.Store
	selector   *selector.Selector
	generator  *generate.Generator
	renderer   *render.Renderer
	writer     *output.Writer
	dispatcher *delivery.Dispatcher
	cache      stepcache.Cache
	settings   SettingsFunc
	debug      *DebugRecorder
	metrics    *metrics.Metrics
	log        *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newRunID   func() (string, error)
}

// NewExecutor wires an Executor. Missing collaborators get local defaults:
// a mock model, the file sink, a logging email sender and a store-backed
// step cache.
func NewExecutor(deps Deps) *Executor {
	log := deps.Log
	if log == nil {
		log = logging.NewNop()
	}
	e := &Executor{
		store:      deps.Store,
		selector:   selector.New(deps.Store),
		generator:  deps.Generator,
		renderer:   deps.Renderer,
		writer:     deps.Writer,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		settings:   deps.Settings,
		debug:      NewDebugRecorder(deps.Debug, log),
		metrics:    deps.Metrics,
		log:        log.Named("orchestrator"),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		newRunID:   func() (string, error) { return gonanoid.New() },
	}
	if e.generator == nil {
		e.generator = generate.New(&generate.Mock{}, log, "")
	}
	if e.renderer == nil {
		e.renderer = render.New(log)
	}
	if e.writer == nil {
		e.writer = output.NewWriter(nil, "", log)
	}
	if e.dispatcher == nil {
		e.dispatcher = delivery.NewDispatcher(map[string]delivery.Sender{
			delivery.ChannelEmail: &delivery.LogSender{Log: log},
		}, log)
	}
	if e.cache == nil {
		e.cache = stepcache.NewStoreCache(deps.Store)
	}
	if e.settings == nil {
		e.settings = StaticSettings(nil)
	}
	return e
}

// WithClock returns a copy of e whose stages all read time from now.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	cp := *e
	cp.now = now
	cp.selector = e.selector.WithClock(now)
	cp.generator = e.generator.WithClock(now)
	cp.renderer = e.renderer.WithClock(now)
	cp.writer = e.writer.WithClock(now)
	cp.dispatcher = e.dispatcher.WithClock(now)
	return &cp
}

// steps are the library configs a pipeline references. Nil means the stage
// is not configured.
type steps struct {
	prompt     *store.PromptConfig
	formatting *store.FormattingConfig
	output     *store.OutputConfig
	delivery   *store.DeliveryConfig
	filters    map[string]any
}

// runContext is the transient state of one run.
type runContext struct {
	runID    string
	pipeline *store.Pipeline
	runType  string
	started  time.Time
	states   []StageState
	errs     []error
	progress *ProgressReporter
	debugDir string
}

func (rc *runContext) detail(stage Stage, key string, v any) {
	for i := range rc.states {
		if rc.states[i].Stage == stage {
			if rc.states[i].Detail == nil {
				rc.states[i].Detail = make(map[string]any)
			}
			rc.states[i].Detail[key] = v
			return
		}
	}
}

func (rc *runContext) errorText() string {
	msgs := make([]string, 0, len(rc.errs))
	for _, err := range rc.errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Run executes a pipeline: select, generate, reconcile, render, persist,
// convert and deliver. Only a ValidationError or a failure to persist the
// report is returned; every other stage failure is recorded on the report
// and the run carries on.
func (e *Executor) Run(ctx context.Context, userID, pipelineID string, opts RunOptions) (*RunSummary, error) {
	p, st, err := e.load(ctx, userID, pipelineID)
	if err != nil {
		return nil, err
	}
	runID, err := e.newRunID()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: run id: %w", err)
	}
	runType := opts.RunType
	if runType == "" {
		runType = RunManual
	}
	rc := &runContext{
		runID:    runID,
		pipeline: p,
		runType:  runType,
		started:  e.now(),
		progress: opts.Progress,
		debugDir: e.debug.RunDir(p.ID, runID),
	}

	ctx = logging.WithRun(ctx, logging.RunInfo{RunID: runID, PipelineID: p.ID, UserID: p.UserID})
	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.id", p.ID),
		attribute.String("run.id", runID),
		attribute.String("run.type", runType),
	))
	defer span.End()
	e.log.Info(ctx, "pipeline run started", zap.String("pipeline", p.Name), zap.String("run_type", runType))

	// 1. Source selection. A failed query leaves the run with no articles.
	var arts []store.Article
	e.stage(ctx, rc, StageSourceSelect, func(ctx context.Context) error {
		fc, _ := selector.ParseFilters(st.filters)
		found, err := e.selector.SelectFilters(ctx, p.UserID, fc)
		if err != nil {
			return &UpstreamError{Op: "select articles", Err: err}
		}
		arts = found
		rc.detail(StageSourceSelect, "articles", len(arts))
		e.debug.Write(ctx, rc.debugDir, "step_1_source_articles.json", arts)
		return nil
	})

	// 2. Content generation.
	tree := content.Null()
	var meta map[string]any
	if st.prompt != nil {
		e.stage(ctx, rc, StageContentGenerate, func(ctx context.Context) error {
			res := e.generator.Generate(ctx, arts, *st.prompt)
			tree = res.Content
			meta = generationMeta(res)
			e.debug.Write(ctx, rc.debugDir, "step_2_prompt.txt", res.Prompt)
			e.debug.Write(ctx, rc.debugDir, "step_2_ai_response_raw.txt", res.Raw)
			e.debug.Write(ctx, rc.debugDir, "step_2_ai_response_parsed.json", res.Content)
			return classifyGeneration(res)
		})
	} else {
		e.skip(ctx, rc, StageContentGenerate)
	}

	// 3. Citation reconciliation, styled by the formatting config if any.
	style := formattingStyle(st.formatting)
	var cites citation.Result
	reconciled := false
	if !tree.Empty() && len(arts) > 0 {
		e.stage(ctx, rc, StageCitationReconcile, func(ctx context.Context) error {
			cites = citation.Reconcile(tree, Candidates(arts), style.ReconcileOptions())
			tree = cites.Tree
			reconciled = true
			rc.detail(StageCitationReconcile, "references", len(cites.References))
			return nil
		})
	} else {
		e.skip(ctx, rc, StageCitationReconcile)
	}

	// 4. Rendering.
	html := ""
	if st.formatting != nil {
		e.stage(ctx, rc, StageTemplateRender, func(ctx context.Context) error {
			out, err := e.renderer.Render(ctx, render.Document{
				Content:      tree,
				Reconciled:   reconciled,
				Citations:    cites,
				PipelineName: p.Name,
			}, render.Template{Body: st.formatting.StructureDefinition, CSS: st.formatting.CSS}, style)
			html = out
			e.debug.Write(ctx, rc.debugDir, "step_3_formatting_html.html", html)
			if err != nil {
				return &TemplateRenderError{Err: err}
			}
			return nil
		})
	} else {
		e.skip(ctx, rc, StageTemplateRender)
	}

	now := e.now().UTC()
	title := tree.GetString("title")
	if title == "" {
		title = "Report " + now.Format(time.DateOnly)
	}
	report := store.Report{
		ID:            store.NewID(),
		UserID:        p.UserID,
		PipelineID:    p.ID,
		Title:         title,
		Status:        store.ReportProcessing,
		Content:       html,
		ArticleIDs:    articleIDs(arts),
		DeliveryLog:   []store.DeliveryLogEntry{},
		RunType:       runType,
		Configuration: st.filters,
		Meta:          meta,
		Error:         rc.errorText(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	summary := &RunSummary{
		RunID:        runID,
		PipelineID:   p.ID,
		PipelineName: p.Name,
		ReportID:     report.ID,
		Title:        title,
		Status:       store.ReportProcessing,
		RunType:      runType,
		ArticleCount: len(arts),
		StartedAt:    rc.started,
	}
	if err := e.store.CreateReport(ctx, report); err != nil {
		err = &UpstreamError{Op: "create report", Err: err}
		e.finish(ctx, rc, summary, span, err)
		return summary, err
	}

	// 5. Output conversion.
	if st.output != nil {
		e.stage(ctx, rc, StageOutputConvert, func(ctx context.Context) error {
			art, err := e.writer.Write(ctx, *st.output, output.Request{
				ReportID:     report.ID,
				PipelineName: p.Name,
				Document: output.Document{
					Title:      title,
					HTML:       html,
					References: cites.References,
					CreatedAt:  report.CreatedAt,
				},
			})
			if err != nil {
				return &UpstreamError{Op: "convert output", Err: err}
			}
			summary.Artifact = art
			rc.detail(StageOutputConvert, "file_path", art.Path)
			return nil
		})
	} else {
		e.skip(ctx, rc, StageOutputConvert)
	}

	// 6. Delivery. Failures land in the delivery log.
	if st.delivery != nil {
		e.stage(ctx, rc, StageDeliver, func(ctx context.Context) error {
			entry := e.deliver(ctx, p.UserID, *st.delivery, delivery.Request{
				Title:          title,
				PipelineName:   p.Name,
				HTML:           html,
				AttachmentPath: artifactPath(summary.Artifact),
			})
			report.DeliveryLog = append(report.DeliveryLog, entry)
			summary.Delivery = &entry
			if entry.Status == delivery.StatusFailed {
				return &UpstreamError{Op: "deliver", Err: errors.New(entry.Error)}
			}
			return nil
		})
	} else {
		e.skip(ctx, rc, StageDeliver)
	}

	// 7. Completion happens whatever the delivery outcome.
	report.Status = store.ReportCompleted
	report.Error = rc.errorText()
	report.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateReport(ctx, report); err != nil {
		err = &UpstreamError{Op: "complete report", Err: err}
		e.finish(ctx, rc, summary, span, err)
		return summary, err
	}
	summary.Status = store.ReportCompleted
	e.finish(ctx, rc, summary, span, nil)
	return summary, nil
}

// load resolves the pipeline and every library config it references.
func (e *Executor) load(ctx context.Context, userID, pipelineID string) (*store.Pipeline, *steps, error) {
	if pipelineID == "" {
		return nil, nil, invalidf("pipeline id is required")
	}
	p, err := e.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, nil, &UpstreamError{Op: "load pipeline", Err: err}
	}
	if p == nil || (userID != "" && p.UserID != userID) {
		return nil, nil, invalidf("pipeline %s not found", pipelineID)
	}

	st := &steps{}
	if st.filters, err = e.filters(ctx, p); err != nil {
		return nil, nil, err
	}
	if _, err := selector.ParseFilters(st.filters); err != nil {
		return nil, nil, &ValidationError{Msg: "pipeline " + p.ID + ": source config", Err: err}
	}
	if p.PromptID != "" {
		if st.prompt, err = store.LoadPrompt(ctx, e.store, p.UserID, p.PromptID); err != nil {
			return nil, nil, refError("prompt", p.PromptID, err)
		}
	}
	if p.FormattingID != "" {
		if st.formatting, err = store.LoadFormatting(ctx, e.store, p.UserID, p.FormattingID); err != nil {
			return nil, nil, refError("formatting", p.FormattingID, err)
		}
	}
	if p.OutputID != "" {
		if st.output, err = store.LoadOutput(ctx, e.store, p.UserID, p.OutputID); err != nil {
			return nil, nil, refError("output", p.OutputID, err)
		}
	}
	if p.DeliveryID != "" {
		if st.delivery, err = store.LoadDelivery(ctx, e.store, p.UserID, p.DeliveryID); err != nil {
			return nil, nil, refError("delivery", p.DeliveryID, err)
		}
	}
	return p, st, nil
}

// filters merges the source template, if any, under the pipeline's inline
// source config.
func (e *Executor) filters(ctx context.Context, p *store.Pipeline) (map[string]any, error) {
	templateID := p.SourceTemplateID
	if templateID == "" {
		if id, ok := p.SourceConfig["template_id"].(string); ok {
			templateID = id
		}
	}
	merged := make(map[string]any)
	if templateID != "" {
		tmpl, err := store.LoadSourceTemplate(ctx, e.store, p.UserID, templateID)
		if err != nil {
			return nil, refError("source template", templateID, err)
		}
		for k, v := range tmpl.Config {
			merged[k] = v
		}
	}
	for k, v := range p.SourceConfig {
		merged[k] = v
	}
	delete(merged, "template_id")
	return merged, nil
}

func refError(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return invalidf("%s config %s not found", kind, id)
	}
	return &UpstreamError{Op: "load " + kind + " config", Err: err}
}

// stage runs fn as stage st: it traces, times, records and reports it.
func (e *Executor) stage(ctx context.Context, rc *runContext, st Stage, fn func(context.Context) error) {
	rc.progress.Emit(ProgressEvent{RunID: rc.runID, Stage: st, Status: ProgressWorking})
	ctx, span := e.tracer.Start(ctx, "stage."+st.String())
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	e.metrics.ObserveStage(st.String(), elapsed)

	state := StageState{Stage: st, Name: st.String(), Status: ProgressComplete, Duration: elapsed}
	if err != nil {
		state.Status = ProgressFailed
		state.Error = err.Error()
		rc.errs = append(rc.errs, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn(ctx, "stage failed", zap.Stringer("stage", st), zap.Error(err))
		rc.progress.Emit(ProgressEvent{RunID: rc.runID, Stage: st, Status: ProgressFailed, Message: err.Error()})
	} else {
		e.log.Debug(ctx, "stage complete", zap.Stringer("stage", st), zap.Duration("duration", elapsed))
		rc.progress.Emit(ProgressEvent{RunID: rc.runID, Stage: st, Status: ProgressComplete})
	}
	rc.states = append(rc.states, state)
}

func (e *Executor) skip(ctx context.Context, rc *runContext, st Stage) {
	e.log.Debug(ctx, "stage skipped", zap.Stringer("stage", st))
	rc.states = append(rc.states, StageState{Stage: st, Name: st.String(), Status: ProgressSkipped})
	rc.progress.Emit(ProgressEvent{RunID: rc.runID, Stage: st, Status: ProgressSkipped})
}

func (e *Executor) finish(ctx context.Context, rc *runContext, summary *RunSummary, span trace.Span, err error) {
	summary.Duration = e.now().Sub(rc.started)
	status := string(summary.Status)
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Error(ctx, "pipeline run failed", zap.Error(err))
		rc.progress.Emit(ProgressEvent{RunID: rc.runID, Stage: StageComplete, Status: ProgressFailed, Message: err.Error()})
	} else {
		rc.states = append(rc.states, StageState{Stage: StageComplete, Name: StageComplete.String(), Status: ProgressComplete})
		e.log.Info(ctx, "pipeline run completed",
			zap.String("report_id", summary.ReportID),
			zap.Int("articles", summary.ArticleCount),
			zap.Int("stage_errors", len(rc.errs)),
		)
		rc.progress.Emit(ProgressEvent{RunID: rc.runID, Stage: StageComplete, Status: ProgressComplete})
	}
	summary.Stages = rc.states
	e.metrics.RecordRun(rc.runType, status)
}

// deliver dispatches with the user's settings merged in and counts the
// outcome.
func (e *Executor) deliver(ctx context.Context, userID string, cfg store.DeliveryConfig, req delivery.Request) store.DeliveryLogEntry {
	settings, err := e.settings(ctx, userID)
	if err != nil {
		e.log.Warn(ctx, "user settings unavailable", zap.Error(err))
	}
	req.Config = cfg
	req.Settings = settings
	entry := e.dispatcher.Dispatch(ctx, req)
	e.metrics.RecordDelivery(entry.Channel, entry.Status)
	return entry
}

// classifyGeneration maps a generation failure onto the error taxonomy.
func classifyGeneration(res generate.Result) error {
	if res.Err == nil {
		return nil
	}
	var malformed *generate.MalformedError
	if errors.As(res.Err, &malformed) {
		return &MalformedContentError{Raw: malformed.Raw, Err: res.Err}
	}
	return &UpstreamError{Op: "generate content", Err: res.Err}
}

func generationMeta(res generate.Result) map[string]any {
	meta := map[string]any{
		"debug_prompt":       res.Prompt,
		"debug_raw_response": res.Raw,
		"model":              res.Model,
	}
	if res.Err != nil {
		meta["error"] = res.Err.Error()
	}
	return meta
}

func formattingStyle(f *store.FormattingConfig) render.Style {
	if f == nil {
		return render.DefaultStyle()
	}
	return render.ParseStyle(f.CitationType, f.Parameters)
}

// Candidates turns selected articles into citation candidates.
func Candidates(arts []store.Article) []citation.Candidate {
	out := make([]citation.Candidate, len(arts))
	for i, a := range arts {
		out[i] = citation.Candidate{
			ID:         a.ID,
			Title:      a.DisplayTitle(),
			URL:        a.URL,
			SourceName: a.SourceName,
			ShortName:  a.SourceReference,
		}
	}
	return out
}

func articleIDs(arts []store.Article) []string {
	ids := make([]string, len(arts))
	for i, a := range arts {
		ids[i] = a.ID
	}
	return ids
}

func artifactPath(a *output.Artifact) string {
	if a == nil {
		return ""
	}
	return a.Path
}
