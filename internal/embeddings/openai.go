package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// OpenAI embeds text through langchaingo's OpenAI client. It also works
// against TEI and other servers that speak the OpenAI embeddings API.
type OpenAI struct {
	embedder  lcembeddings.Embedder
	model     string
	metrics   *Metrics
	dimension int
}

// NewOpenAI creates the provider. metrics may be nil.
func NewOpenAI(cfg OpenAIConfig, metrics *Metrics) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo refuses an empty token even for local servers
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return newOpenAI(embedder, cfg.Model, metrics), nil
}

func newOpenAI(embedder lcembeddings.Embedder, model string, metrics *Metrics) *OpenAI {
	return &OpenAI{
		embedder:  embedder,
		model:     model,
		metrics:   metrics,
		dimension: detectDimensionFromModel(model),
	}
}

// EmbedDocuments implements Provider.
func (o *OpenAI) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	defer func(start time.Time) {
		o.metrics.RecordGeneration(ctx, o.model, "embed_documents", time.Since(start), len(texts), err)
	}(time.Now())

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err = o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery implements Provider.
func (o *OpenAI) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	defer func(start time.Time) {
		o.metrics.RecordGeneration(ctx, o.model, "embed_query", time.Since(start), 1, err)
	}(time.Now())

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err = o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension implements Provider.
func (o *OpenAI) Dimension() int { return o.dimension }

// Close implements Provider.
func (o *OpenAI) Close() error { return nil }
