// Package generate drafts report content from selected articles through a
// text generation backend and decodes the reply into a content tree.
package generate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/content"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/store"
)

// Result is the outcome of one generation. Content is always usable; when
// generation failed it is an ErrorContent object and Err says why.
type Result struct {
	Content content.Node
	Prompt  string
	Raw     string
	Model   string
	Err     error
}

// Generator renders prompts and calls the LLM.
type Generator struct {
	llm          LLM
	log          *logging.Logger
	defaultModel string
	now          func() time.Time
}

// New creates a Generator. An empty defaultModel means DefaultModel.
func New(llm LLM, log *logging.Logger, defaultModel string) *Generator {
	if log == nil {
		log = logging.NewNop()
	}
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	return &Generator{llm: llm, log: log, defaultModel: defaultModel, now: time.Now}
}

// WithClock returns a copy of g that reads time from now.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	cp.now = now
	return &cp
}

// Generate drafts content for arts with cfg. It never returns an error: all
// failures are folded into Result.Content and reported in Result.Err.
func (g *Generator) Generate(ctx context.Context, arts []store.Article, cfg store.PromptConfig) Result {
	if len(arts) == 0 {
		return Result{Content: NoArticlesContent()}
	}

	model := cfg.Model
	if model == "" {
		model = g.defaultModel
	}
	res := Result{Model: model}

	prompt, err := BuildPrompt(cfg.PromptText, arts, g.now())
	if err != nil {
		g.log.Warn(ctx, "prompt template failed, using raw text", zap.Error(err))
	}
	res.Prompt = prompt

	g.log.Debug(ctx, "calling model",
		zap.String("model", model),
		zap.Int("articles", len(arts)),
		zap.Int("prompt_chars", len(prompt)),
	)
	raw, err := g.llm.Complete(ctx, prompt, model)
	if err == nil && raw == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		return g.fail(ctx, res, &UpstreamError{Err: err})
	}
	res.Raw = raw

	tree, err := ParseResponse(raw)
	if err != nil {
		return g.fail(ctx, res, err)
	}
	res.Content = tree
	return res
}

func (g *Generator) fail(ctx context.Context, res Result, err error) Result {
	g.log.Error(ctx, "generation failed", zap.String("model", res.Model), zap.Error(err))
	msg := err.Error()
	var up *UpstreamError
	if errors.As(err, &up) {
		msg = up.Err.Error()
	}
	res.Content = ErrorContent(msg)
	res.Err = err
	return res
}

// UpstreamError wraps a failure of the generation backend itself.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "generate: model call: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }
