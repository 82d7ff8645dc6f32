package generator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/config"
	"github.com/fyrsmithlabs/complyd/internal/retry"
)

// New builds the configured Generator, wrapped in a response cache when
// cache_ttl is set.
func New(cfg config.GeneratorConfig, policy retry.Policy, logger *zap.Logger) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case "ollama", "":
		gen, err = NewOllama(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout.Duration(),
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			Retry:     policy,
		}, logger)
	case "openai":
		gen, err = NewOpenAI(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
			Retry:   policy,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if ttl := cfg.CacheTTL.Duration(); ttl > 0 {
		gen = NewCached(gen, ttl)
	}
	return gen, nil
}
