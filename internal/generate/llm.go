package generate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LLM is the text generation capability.
type LLM interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Provider names accepted by NewLLM.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	// ProviderLangchainOpenAI talks to any OpenAI-compatible endpoint
	// through langchaingo.
	ProviderLangchainOpenAI = "langchain-openai"
	ProviderMock            = "mock"
)

// Config selects and configures the generation backend.
type Config struct {
	Provider     string `koanf:"provider" yaml:"provider"`
	APIKey       string `koanf:"api_key" yaml:"api_key"`
	BaseURL      string `koanf:"base_url" yaml:"base_url"`
	DefaultModel string `koanf:"default_model" yaml:"default_model"`
	// MockReply is returned verbatim by the mock provider.
	MockReply string `koanf:"mock_reply" yaml:"mock_reply"`
}

// NewLLM builds the configured backend.
func NewLLM(cfg Config) (LLM, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL)
	case ProviderOllama:
		opts := []ollama.Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		if cfg.DefaultModel != "" {
			opts = append(opts, ollama.WithModel(cfg.DefaultModel))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("generate: ollama client: %w", err)
		}
		return NewLangchain(m), nil
	case ProviderLangchainOpenAI:
		token := cfg.APIKey
		if token == "" {
			// langchaingo refuses an empty token even for local servers.
			token = "placeholder"
		}
		opts := []lcopenai.Option{lcopenai.WithToken(token)}
		if cfg.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.DefaultModel != "" {
			opts = append(opts, lcopenai.WithModel(cfg.DefaultModel))
		}
		m, err := lcopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("generate: langchain openai client: %w", err)
		}
		return NewLangchain(m), nil
	case "", ProviderMock:
		return &Mock{Reply: cfg.MockReply}, nil
	default:
		return nil, fmt.Errorf("generate: unknown provider %q", cfg.Provider)
	}
}

// OpenAI implements LLM with the official openai-go SDK (chat completions).
type OpenAI struct {
	opts []option.RequestOption
}

func NewOpenAI(apiKey, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("generate: openai api key missing; set generation.api_key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{opts: opts}, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt, model string) (string, error) {
	client := openai.NewClient(o.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Langchain adapts any langchaingo model.
type Langchain struct {
	model llms.Model
}

func NewLangchain(m llms.Model) *Langchain { return &Langchain{model: m} }

func (l *Langchain) Complete(ctx context.Context, prompt, model string) (string, error) {
	var opts []llms.CallOption
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	return llms.GenerateFromSinglePrompt(ctx, l.model, prompt, opts...)
}

// Mock returns a canned reply and records every call.
type Mock struct {
	Reply string
	Err   error
	// ReplyFunc, when set, overrides Reply.
	ReplyFunc func(prompt, model string) (string, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded Complete invocation.
type MockCall struct {
	Prompt string
	Model  string
}

func (m *Mock) Complete(ctx context.Context, prompt, model string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Model: model})
	m.mu.Unlock()
	if m.ReplyFunc != nil {
		return m.ReplyFunc(prompt, model)
	}
	return m.Reply, m.Err
}

// Calls returns a copy of the recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
