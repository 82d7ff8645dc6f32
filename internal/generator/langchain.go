package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/retry"
)

// LangChain adapts any langchaingo model to Generator.
type LangChain struct {
	model    llms.Model
	provider string
	policy   retry.Policy
	logger   *zap.Logger
}

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Retry   retry.Policy
}

// NewOpenAI creates a Generator backed by an OpenAI-compatible API.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) (*LangChain, error) {
	opts := []openai.Option{}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	} else if cfg.BaseURL != "" {
		// local OpenAI-compatible servers ignore the token but the client requires one
		opts = append(opts, openai.WithToken("unused"))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", ErrInvalidConfig, err)
	}
	return NewLangChain(llm, "openai", cfg.Retry, logger), nil
}

// NewLangChain wraps model. provider names it in errors and metrics.
func NewLangChain(model llms.Model, provider string, policy retry.Policy, logger *zap.Logger) *LangChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LangChain{model: model, provider: provider, policy: policy, logger: logger}
}

// Complete implements Generator.
func (l *LangChain) Complete(ctx context.Context, system, user string, temperature float64) (text string, err error) {
	defer func(start time.Time) { observe(l.provider, "complete", start, err) }(time.Now())
	return l.generate(ctx, "complete", system, user, llms.WithTemperature(temperature))
}

// CompleteJSON implements Generator using the model's JSON mode.
func (l *LangChain) CompleteJSON(ctx context.Context, system, user string, temperature float64, out any) (err error) {
	defer func(start time.Time) { observe(l.provider, "complete_json", start, err) }(time.Now())

	text, err := l.generate(ctx, "complete_json", system+jsonInstruction, user,
		llms.WithTemperature(temperature), llms.WithJSONMode())
	if err != nil {
		return err
	}
	if err := decodeJSON(text, out); err != nil {
		return &GenerationError{Provider: l.provider, Op: "complete_json", Err: err}
	}
	return nil
}

func (l *LangChain) generate(ctx context.Context, op, system, user string, opts ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var text string
	err := retry.Do(ctx, l.policy, l.logger, func(ctx context.Context) error {
		resp, err := l.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
			return ErrEmptyResponse
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		var ge *GenerationError
		if errors.As(err, &ge) {
			return "", err
		}
		return "", &GenerationError{Provider: l.provider, Op: op, Err: err}
	}
	return text, nil
}

// classify marks rate-limit and server failures from langchaingo as retryable.
// The client reports them only through the error text.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "status code: 5"), strings.Contains(msg, "connection refused"):
		return retry.Retryable(err)
	}
	return err
}
