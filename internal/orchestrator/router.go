package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/citation"
	"github.com/dusk-indust/briefing/internal/content"
	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/output"
	"github.com/dusk-indust/briefing/internal/render"
	"github.com/dusk-indust/briefing/internal/selector"
	"github.com/dusk-indust/briefing/internal/stepcache"
	"github.com/dusk-indust/briefing/internal/store"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// TestRequest runs one stage in isolation.
type TestRequest struct {
	UserID string `json:"user_id"`
	// Step is 1 (select), 2 (generate), 3 (format), 4 (output) or 5 (deliver).
	Step int `json:"step_number"`
	// Input is the step's input context as JSON.
	Input json.RawMessage `json:"input_context"`
	// ConfigRef is the library record the step runs with. Steps 2-5 need it.
	ConfigRef    string `json:"step_config_id,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

// TestResult is a test step's output. Result holds the JSON the step
// produced, byte for byte as cached.
type TestResult struct {
	Step   int             `json:"step_number"`
	Hash   string          `json:"hash"`
	Cached bool            `json:"cached"`
	Result json.RawMessage `json:"result"`
}

// stepRoute binds a step number to its handler.
type stepRoute struct {
	stage Stage
	// kind is the library record the step requires, empty for none.
	kind store.RecordKind
	run  func(e *Executor, ctx context.Context, req TestRequest, ref any, dir string) (any, error)
}

var routes = map[int]stepRoute{
	1: {stage: StageSourceSelect, run: (*Executor).testSelect},
	2: {stage: StageContentGenerate, kind: store.KindPrompt, run: (*Executor).testGenerate},
	3: {stage: StageTemplateRender, kind: store.KindFormatting, run: (*Executor).testFormat},
	4: {stage: StageOutputConvert, kind: store.KindOutput, run: (*Executor).testOutput},
	5: {stage: StageDeliver, kind: store.KindDelivery, run: (*Executor).testDeliver},
}

// TestStep executes a single step, serving repeated identical requests from
// the step cache. The cache key covers the request and the live content of
// the referenced library record, so editing the record invalidates it.
func (e *Executor) TestStep(ctx context.Context, req TestRequest) (*TestResult, error) {
	route, ok := routes[req.Step]
	if !ok {
		return nil, invalidf("step %d is not supported", req.Step)
	}
	if len(req.Input) == 0 {
		req.Input = json.RawMessage("{}")
	}

	ref, hashExtra, err := e.resolveRef(ctx, req, route.kind)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"step_number":    req.Step,
		"input_context":  req.Input,
		"step_config_id": nilIfEmpty(req.ConfigRef),
	}
	for k, v := range hashExtra {
		payload[k] = v
	}
	hash, err := stepcache.Hash(payload)
	if err != nil {
		return nil, &ValidationError{Msg: "input context", Err: err}
	}
	key := stepcache.Key{UserID: req.UserID, Step: req.Step, Hash: hash}

	if !req.ForceRefresh {
		cached, hit, err := e.cache.Get(ctx, key)
		if err != nil {
			e.log.Warn(ctx, "step cache read failed", zap.Error(err))
		}
		e.metrics.RecordCache(hit)
		if hit {
			e.log.Info(ctx, "step cache hit", zap.Int("step", req.Step))
			return &TestResult{Step: req.Step, Hash: hash, Cached: true, Result: cached}, nil
		}
	}

	e.log.Info(ctx, "executing test step", zap.Int("step", req.Step), zap.Stringer("stage", route.stage))
	dir := e.debug.TestDir(req.Step, e.now())
	out, err := route.run(e, ctx, req, ref, dir)
	if err != nil {
		return nil, err
	}
	data, err := jsonAPI.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: encode step %d result: %w", req.Step, err)
	}
	if err := e.cache.Put(ctx, key, data); err != nil {
		e.log.Warn(ctx, "step cache write failed", zap.Error(err))
	}
	return &TestResult{Step: req.Step, Hash: hash, Result: data}, nil
}

// resolveRef loads the library record a step requires and returns the parts
// of it that feed the cache key.
func (e *Executor) resolveRef(ctx context.Context, req TestRequest, kind store.RecordKind) (any, map[string]any, error) {
	if kind == "" {
		return nil, nil, nil
	}
	if req.ConfigRef == "" {
		return nil, nil, invalidf("step %d requires a %s config", req.Step, kind)
	}
	switch kind {
	case store.KindPrompt:
		c, err := store.LoadPrompt(ctx, e.store, req.UserID, req.ConfigRef)
		if err != nil {
			return nil, nil, refError(string(kind), req.ConfigRef, err)
		}
		return c, map[string]any{"prompt_text": c.PromptText, "model": c.Model}, nil
	case store.KindFormatting:
		c, err := store.LoadFormatting(ctx, e.store, req.UserID, req.ConfigRef)
		if err != nil {
			return nil, nil, refError(string(kind), req.ConfigRef, err)
		}
		return c, map[string]any{
			"structure_definition": c.StructureDefinition,
			"css":                  c.CSS,
			"citation_type":        c.CitationType,
			"parameters":           c.Parameters,
		}, nil
	case store.KindOutput:
		c, err := store.LoadOutput(ctx, e.store, req.UserID, req.ConfigRef)
		if err != nil {
			return nil, nil, refError(string(kind), req.ConfigRef, err)
		}
		return c, map[string]any{"out_config": map[string]any{
			"converter_type": c.ConverterType,
			"parameters":     c.Parameters,
		}}, nil
	case store.KindDelivery:
		c, err := store.LoadDelivery(ctx, e.store, req.UserID, req.ConfigRef)
		if err != nil {
			return nil, nil, refError(string(kind), req.ConfigRef, err)
		}
		return c, map[string]any{"del_config": map[string]any{
			"delivery_type": c.DeliveryType,
			"parameters":    c.Parameters,
		}}, nil
	}
	return nil, nil, invalidf("unknown config kind %s", kind)
}

func (e *Executor) testSelect(ctx context.Context, req TestRequest, _ any, dir string) (any, error) {
	raw, err := inputMap(req.Input)
	if err != nil {
		return nil, err
	}
	fc, err := selector.ParseFilters(raw)
	if err != nil {
		return nil, &ValidationError{Msg: "filters", Err: err}
	}
	arts, err := e.selector.SelectFilters(ctx, req.UserID, fc)
	if err != nil {
		return nil, &UpstreamError{Op: "select articles", Err: err}
	}
	e.debug.Write(ctx, dir, "step_1_source_articles.json", arts)
	if arts == nil {
		arts = []store.Article{}
	}
	return arts, nil
}

func (e *Executor) testGenerate(ctx context.Context, req TestRequest, ref any, dir string) (any, error) {
	prompt := ref.(*store.PromptConfig)
	in, err := inputMap(req.Input)
	if err != nil {
		return nil, err
	}
	arts, err := e.store.GetArticles(ctx, req.UserID, cast.ToStringSlice(in["article_ids"]))
	if err != nil {
		return nil, &UpstreamError{Op: "load articles", Err: err}
	}
	e.debug.Write(ctx, dir, "step_1_input_articles.json", arts)

	res := e.generator.Generate(ctx, arts, *prompt)
	e.debug.Write(ctx, dir, "step_2_prompt.txt", res.Prompt)
	e.debug.Write(ctx, dir, "step_2_ai_response_raw.txt", res.Raw)
	e.debug.Write(ctx, dir, "step_2_ai_response_parsed.json", res.Content)
	if err := classifyGeneration(res); err != nil {
		e.log.Warn(ctx, "test generation failed", zap.Error(err))
	}

	tree := res.Content
	if len(arts) > 0 && !tree.Empty() {
		style := e.inputStyle(ctx, req.UserID, in)
		tree = citation.Reconcile(tree, Candidates(arts), style.ReconcileOptions()).Tree
	}
	tree = tree.Set("_debug_prompt", content.String(res.Prompt))
	tree = tree.Set("_debug_raw_response", content.String(res.Raw))
	return tree, nil
}

// inputStyle resolves the citation style of a step 2 request: an explicit
// citation_type wins, then the referenced formatting config.
func (e *Executor) inputStyle(ctx context.Context, userID string, in map[string]any) render.Style {
	citationType := cast.ToString(in["citation_type"])
	params, _ := in["formatting_params"].(map[string]any)
	if id := cast.ToString(in["formatting_id"]); id != "" && (citationType == "" || len(params) == 0) {
		f, err := store.LoadFormatting(ctx, e.store, userID, id)
		if err == nil {
			if citationType == "" {
				citationType = f.CitationType
			}
			if len(params) == 0 {
				params = f.Parameters
			}
		}
	}
	return render.ParseStyle(citationType, params)
}

func (e *Executor) testFormat(ctx context.Context, req TestRequest, ref any, dir string) (any, error) {
	fmtCfg := ref.(*store.FormattingConfig)
	tree, err := content.Parse(req.Input)
	if err != nil {
		return nil, &ValidationError{Msg: "input context", Err: err}
	}
	ids := cast.ToStringSlice(nodeValue(tree, "article_ids"))
	if len(ids) == 0 {
		ids = citation.ExtractIDs(tree)
	}

	style := formattingStyle(fmtCfg)
	doc := render.Document{Content: tree, PipelineName: tree.GetString("pipeline_name")}
	if len(ids) > 0 {
		arts, err := e.store.GetArticles(ctx, req.UserID, ids)
		if err != nil {
			return nil, &UpstreamError{Op: "load articles", Err: err}
		}
		if len(arts) > 0 {
			doc.Citations = citation.Reconcile(tree, Candidates(arts), style.ReconcileOptions())
			doc.Content = doc.Citations.Tree
			doc.Reconciled = true
		}
	}
	html, err := e.renderer.Render(ctx, doc, render.Template{Body: fmtCfg.StructureDefinition, CSS: fmtCfg.CSS}, style)
	if err != nil {
		e.log.Warn(ctx, "test formatting failed", zap.Error(&TemplateRenderError{Err: err}))
	}
	e.debug.Write(ctx, dir, "step_3_formatting_html.html", html)
	return html, nil
}

func (e *Executor) testOutput(ctx context.Context, req TestRequest, ref any, _ string) (any, error) {
	outCfg := ref.(*store.OutputConfig)
	in, err := inputMap(req.Input)
	if err != nil {
		return nil, err
	}
	art, err := e.writer.Write(ctx, *outCfg, output.Request{
		ReportID:     "TEST-REPORT",
		PipelineName: stringOr(in["pipeline_name"], "Test Pipeline"),
		Document: output.Document{
			Title:     stringOr(in["report_title"], "Test Report"),
			HTML:      cast.ToString(in["html_result"]),
			CreatedAt: e.now().UTC(),
		},
	})
	if err != nil {
		return nil, &UpstreamError{Op: "convert output", Err: err}
	}
	return art, nil
}

func (e *Executor) testDeliver(ctx context.Context, req TestRequest, ref any, _ string) (any, error) {
	delCfg := ref.(*store.DeliveryConfig)
	in, err := inputMap(req.Input)
	if err != nil {
		return nil, err
	}
	entry := e.deliver(ctx, req.UserID, *delCfg, delivery.Request{
		Title:          stringOr(in["report_title"], "Test Report"),
		PipelineName:   stringOr(in["pipeline_name"], "Unknown Pipeline"),
		HTML:           cast.ToString(in["html"]),
		AttachmentPath: cast.ToString(in["attachment_path"]),
	})
	return map[string]any{"status": entry.Status, "log": entry}, nil
}

func inputMap(raw json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := jsonAPI.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Msg: "input context must be a JSON object", Err: err}
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func nodeValue(n content.Node, key string) any {
	v, ok := n.Get(key)
	if !ok {
		return nil
	}
	return v.Interface()
}

func stringOr(v any, fallback string) string {
	if s := cast.ToString(v); s != "" {
		return s
	}
	return fallback
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
