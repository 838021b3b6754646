package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/generate"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/output"
	"github.com/dusk-indust/briefing/internal/store"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

const briefReply = "```json\n" + `{"title":"Daily Brief","summary":"Chips up [REF:a1][REF:a2]. Again [[CITATION:a1]]. Bogus [REF:zz]."}` + "\n```"

const briefTemplate = `<h1>{{ .title }}</h1><p>{{ .summary }}</p><ol>{{ range .references }}<li id="ref-{{ .id }}">{{ .title }}</li>{{ end }}</ol>`

// fakeSender records messages; SendFunc decides the outcome.
type fakeSender struct {
	mu       sync.Mutex
	sent     []delivery.Message
	SendFunc func(delivery.Message) error
}

func (f *fakeSender) Send(_ context.Context, msg delivery.Message) (delivery.ProviderStatus, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.SendFunc != nil {
		if err := f.SendFunc(msg); err != nil {
			return delivery.ProviderStatus{}, err
		}
	}
	return delivery.ProviderStatus{Provider: "fake", Status: "sent"}, nil
}

func (f *fakeSender) messages() []delivery.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery.Message(nil), f.sent...)
}

type fixture struct {
	store  *store.MemStore
	llm    *generate.Mock
	sender *fakeSender
	outDir string
	log    *logging.TestLogger
	exec   *Executor
}

// newFixture seeds user u1 with three articles and a fully configured
// pipeline p1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.InitSchema(ctx))

	corpus := store.Corpus{
		Sources: []store.Source{
			{ID: "src-r", UserID: "u1", Name: "Reuters", ReferenceName: "RTRS"},
			{ID: "src-x", UserID: "u2", Name: "Elsewhere"},
		},
		Articles: []store.Article{
			{ID: "a1", SourceID: "src-r", Title: "Chip exports surge", URL: "https://example.com/a1",
				Summary: "Exports grew.", PublishedAt: testNow.Add(-2 * time.Hour), Relevance: 8},
			{ID: "a2", SourceID: "src-r", Title: "Tarifs", TranslatedTitle: "Tariffs", URL: "https://example.com/a2",
				PublishedAt: testNow.Add(-30 * time.Hour), Relevance: 5},
			{ID: "a3", SourceID: "src-r", Title: "Old news", URL: "https://example.com/a3",
				PublishedAt: testNow.Add(-20 * 24 * time.Hour)},
			{ID: "b1", SourceID: "src-x", Title: "Not yours", PublishedAt: testNow.Add(-time.Hour)},
		},
	}
	require.NoError(t, corpus.Load(ctx, s))

	require.NoError(t, store.SavePrompt(ctx, s, store.PromptConfig{
		ID: "prompt-1", UserID: "u1", Name: "Brief", PromptText: "Summarize:\n{{ articles_text }}",
	}))
	require.NoError(t, store.SaveFormatting(ctx, s, store.FormattingConfig{
		ID: "fmt-1", UserID: "u1", Name: "Plain", StructureDefinition: briefTemplate, CSS: "h1 { color: red; }",
		CitationType: "numeric_superscript",
	}))
	require.NoError(t, store.SaveOutput(ctx, s, store.OutputConfig{
		ID: "out-1", UserID: "u1", Name: "HTML file", ConverterType: "HTML",
		Parameters: map[string]any{"filename_template": "{{ pipeline }}_{{ date }}"},
	}))
	require.NoError(t, store.SaveDelivery(ctx, s, store.DeliveryConfig{
		ID: "del-1", UserID: "u1", Name: "Team", DeliveryType: "EMAIL",
		Parameters: map[string]any{"recipients": "team@example.com"},
	}))
	require.NoError(t, s.PutPipeline(ctx, store.Pipeline{
		ID: "p1", UserID: "u1", Name: "Morning",
		SourceConfig: map[string]any{"filter_date": "7d"},
		PromptID:     "prompt-1", FormattingID: "fmt-1", OutputID: "out-1", DeliveryID: "del-1",
	}))

	f := &fixture{
		store:  s,
		llm:    &generate.Mock{Reply: briefReply},
		sender: &fakeSender{},
		outDir: t.TempDir(),
		log:    logging.NewTestLogger(),
	}
	f.rebuild(Deps{})
	return f
}

// rebuild wires a fresh executor; fields set in deps win over the fixture's.
func (f *fixture) rebuild(deps Deps) {
	deps.Store = f.store
	if deps.Log == nil {
		deps.Log = f.log.Logger
	}
	if deps.Generator == nil {
		deps.Generator = generate.New(f.llm, deps.Log, "")
	}
	if deps.Writer == nil {
		deps.Writer = output.NewWriter(output.FileSink{}, f.outDir, deps.Log)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = delivery.NewDispatcher(map[string]delivery.Sender{delivery.ChannelEmail: f.sender}, deps.Log)
	}
	f.exec = NewExecutor(deps).WithClock(func() time.Time { return testNow })
	f.exec.newRunID = func() (string, error) { return "run-1", nil }
}

func TestRun_FullPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	progress := NewProgressReporter()
	summary, err := f.exec.Run(ctx, "u1", "p1", RunOptions{Progress: progress})
	require.NoError(t, err)
	progress.Close()

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, store.ReportCompleted, summary.Status)
	assert.Equal(t, RunManual, summary.RunType)
	assert.Equal(t, 2, summary.ArticleCount)
	assert.Equal(t, "Daily Brief", summary.Title)

	var names []string
	for _, st := range summary.Stages {
		assert.Equal(t, ProgressComplete, st.Status, st.Name)
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{
		"source_select", "content_generate", "citation_reconcile",
		"template_render", "output_convert", "deliver", "complete",
	}, names)

	rep, err := f.store.GetReport(ctx, summary.ReportID)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, store.ReportCompleted, rep.Status)
	assert.Equal(t, "Daily Brief", rep.Title)
	assert.Equal(t, []string{"a1", "a2"}, rep.ArticleIDs)
	assert.Equal(t, "p1", rep.PipelineID)
	assert.Equal(t, map[string]any{"filter_date": "7d"}, rep.Configuration)
	assert.Empty(t, rep.Error)
	assert.Contains(t, rep.Meta["debug_prompt"], "[Article 1] (ID: a1) Chip exports surge")

	assert.Contains(t, rep.Content, `<a href="https://example.com/a1" target="_blank"`)
	assert.Contains(t, rep.Content, `<li id="ref-a2">Tariffs</li>`)
	assert.Contains(t, rep.Content, "h1 { color: red; }")
	assert.NotContains(t, rep.Content, "REF:")
	assert.NotContains(t, rep.Content, "CITE_GROUP")
	assert.NotContains(t, rep.Content, "zz")

	require.NotNil(t, summary.Artifact)
	assert.Equal(t, filepath.Join(f.outDir, "Morning_2025-03-10.html"), summary.Artifact.Path)
	data, err := os.ReadFile(summary.Artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, rep.Content, string(data))

	require.Len(t, rep.DeliveryLog, 1)
	entry := rep.DeliveryLog[0]
	assert.Equal(t, delivery.StatusSuccess, entry.Status)
	assert.Equal(t, "Report: Daily Brief", entry.Subject)
	assert.Equal(t, []string{"team@example.com"}, entry.Recipients)

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, "Morning_2025-03-10.html", msgs[0].Attachment.Filename)

	var events []ProgressEvent
	for ev := range progress.Subscribe() {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StageComplete, last.Stage)
	assert.Equal(t, ProgressComplete, last.Status)
	assert.Equal(t, "run-1", last.RunID)
}

func TestRun_UnknownPipelineIsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exec.Run(ctx, "u1", "nope", RunOptions{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// Another user's pipeline is invisible.
	_, err = f.exec.Run(ctx, "u2", "p1", RunOptions{})
	assert.True(t, IsValidation(err))

	reports, err := f.store.ListReports(ctx, store.ReportQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, reports, "validation failures have no side effects")
	assert.Empty(t, f.llm.Calls())
}

func TestRun_DanglingReferenceIsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutPipeline(ctx, store.Pipeline{
		ID: "p2", UserID: "u1", Name: "Broken", PromptID: "prompt-1", FormattingID: "ghost",
	}))

	_, err := f.exec.Run(ctx, "u1", "p2", RunOptions{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "formatting config ghost not found")
	assert.Empty(t, f.llm.Calls())
}

func TestRun_InvalidFiltersIsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutPipeline(ctx, store.Pipeline{
		ID: "p3", UserID: "u1", Name: "Bad window", SourceConfig: map[string]any{"filter_date": "1y"},
	}))

	_, err := f.exec.Run(ctx, "u1", "p3", RunOptions{})
	assert.True(t, IsValidation(err))
}

func TestRun_MinimalPipelineSkipsStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutPipeline(ctx, store.Pipeline{
		ID: "p4", UserID: "u1", Name: "Select only", SourceConfig: map[string]any{"filter_date": "30d"},
	}))

	summary, err := f.exec.Run(ctx, "u1", "p4", RunOptions{RunType: RunScheduled})
	require.NoError(t, err)

	for _, st := range []Stage{StageContentGenerate, StageCitationReconcile, StageTemplateRender, StageOutputConvert, StageDeliver} {
		state, ok := summary.Stage(st)
		require.True(t, ok, st.String())
		assert.Equal(t, ProgressSkipped, state.Status, st.String())
	}
	rep, err := f.store.GetReport(ctx, summary.ReportID)
	require.NoError(t, err)
	assert.Equal(t, "Report 2025-03-10", rep.Title)
	assert.Equal(t, []string{"a1", "a2", "a3"}, rep.ArticleIDs)
	assert.Equal(t, RunScheduled, rep.RunType)
	assert.Empty(t, rep.Content)
	assert.Empty(t, rep.DeliveryLog)
}

func TestRun_SourceTemplateMergesUnderInlineConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSourceTemplate(ctx, f.store, store.SourceTemplate{
		ID: "tpl-1", UserID: "u1", Name: "Recent", Config: map[string]any{"filter_date": "24h", "limit": 5},
	}))
	require.NoError(t, f.store.PutPipeline(ctx, store.Pipeline{
		ID: "p5", UserID: "u1", Name: "Templated",
		SourceConfig: map[string]any{"template_id": "tpl-1", "min_relevance": 6},
	}))

	summary, err := f.exec.Run(ctx, "u1", "p5", RunOptions{})
	require.NoError(t, err)
	rep, err := f.store.GetReport(ctx, summary.ReportID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, rep.ArticleIDs)
	assert.NotContains(t, rep.Configuration, "template_id")
	assert.Contains(t, rep.Configuration, "limit")
}

func TestRun_GenerationFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	f.llm.Reply = ""
	f.llm.Err = errors.New("quota exceeded")

	summary, err := f.exec.Run(context.Background(), "u1", "p1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.ReportCompleted, summary.Status)

	gen, _ := summary.Stage(StageContentGenerate)
	assert.Equal(t, ProgressFailed, gen.Status)
	assert.Contains(t, gen.Error, "quota exceeded")

	rep, err := f.store.GetReport(context.Background(), summary.ReportID)
	require.NoError(t, err)
	assert.Equal(t, "Error Generating Report", rep.Title)
	assert.Contains(t, rep.Error, "quota exceeded")
	assert.Contains(t, rep.Content, "An error occurred: ")
}

func TestRun_MalformedReplyIsClassified(t *testing.T) {
	f := newFixture(t)
	f.llm.Reply = "I could not produce JSON today."

	summary, err := f.exec.Run(context.Background(), "u1", "p1", RunOptions{})
	require.NoError(t, err)
	gen, _ := summary.Stage(StageContentGenerate)
	assert.Equal(t, ProgressFailed, gen.Status)
	assert.Contains(t, gen.Error, "malformed content")
}

func TestRun_DeliveryFailureStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.sender.SendFunc = func(delivery.Message) error { return errors.New("relay denied") }

	summary, err := f.exec.Run(context.Background(), "u1", "p1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.ReportCompleted, summary.Status)

	rep, err := f.store.GetReport(context.Background(), summary.ReportID)
	require.NoError(t, err)
	assert.Equal(t, store.ReportCompleted, rep.Status)
	require.Len(t, rep.DeliveryLog, 1)
	assert.Equal(t, delivery.StatusFailed, rep.DeliveryLog[0].Status)
	assert.Contains(t, rep.DeliveryLog[0].Error, "relay denied")
	assert.Contains(t, rep.Error, "relay denied")
	f.log.AssertLogged(t, zapcore.ErrorLevel, "delivery failed")
}

func TestRun_BrokenTemplateRendersErrorPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.SaveFormatting(ctx, f.store, store.FormattingConfig{
		ID: "fmt-1", UserID: "u1", Name: "Plain", StructureDefinition: "{{ .title ",
	}))

	summary, err := f.exec.Run(ctx, "u1", "p1", RunOptions{})
	require.NoError(t, err)
	st, _ := summary.Stage(StageTemplateRender)
	assert.Equal(t, ProgressFailed, st.Status)

	rep, err := f.store.GetReport(ctx, summary.ReportID)
	require.NoError(t, err)
	assert.Contains(t, rep.Content, "<h1>Formatting Error</h1>")
}

func TestRun_DebugDumps(t *testing.T) {
	f := newFixture(t)
	debugDir := t.TempDir()
	f.rebuild(Deps{Debug: DebugConfig{Enabled: true, Dir: debugDir}})

	_, err := f.exec.Run(context.Background(), "u1", "p1", RunOptions{})
	require.NoError(t, err)

	runDir := filepath.Join(debugDir, "p1", "run-1")
	for _, name := range []string{
		"step_1_source_articles.json",
		"step_2_prompt.txt",
		"step_2_ai_response_raw.txt",
		"step_2_ai_response_parsed.json",
		"step_3_formatting_html.html",
	} {
		assert.FileExists(t, filepath.Join(runDir, name))
	}
	raw, err := os.ReadFile(filepath.Join(runDir, "step_2_ai_response_raw.txt"))
	require.NoError(t, err)
	assert.Equal(t, briefReply, string(raw))
}

func TestCandidatesUseDisplayTitle(t *testing.T) {
	got := Candidates([]store.Article{
		{ID: "a", Title: "Original", TranslatedTitle: "Translated", URL: "u", SourceName: "Reuters", SourceReference: "RTRS"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "Translated", got[0].Title)
	assert.Equal(t, "RTRS", got[0].ShortName)
}

func TestErrorTaxonomy(t *testing.T) {
	base := errors.New("boom")

	wrapped := errors.Join(errors.New("ctx"), &ValidationError{Msg: "bad", Err: base})
	assert.True(t, IsValidation(wrapped))
	assert.ErrorIs(t, wrapped, base)

	up := &UpstreamError{Op: "deliver", Err: base}
	assert.Equal(t, "orchestrator: deliver: boom", up.Error())
	assert.False(t, IsValidation(up))
	assert.ErrorIs(t, up, base)

	assert.Equal(t, "orchestrator: render template: boom", (&TemplateRenderError{Err: base}).Error())
	assert.ErrorIs(t, &MalformedContentError{Raw: "x", Err: base}, base)
	assert.Equal(t, "orchestrator: step 9 is not supported", invalidf("step %d is not supported", 9).Error())
}
