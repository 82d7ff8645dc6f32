package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/complyd/internal/retry"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2:latest"
	defaultTimeout     = 120 * time.Second
	defaultRateLimit   = 2.0
	defaultBurst       = 1
	maxErrorBody       = 512
)

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Retry     retry.Policy
}

// Ollama generates text through the Ollama chat API.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	logger     *zap.Logger
}

// NewOllama creates an Ollama client.
func NewOllama(cfg OllamaConfig, logger *zap.Logger) (*Ollama, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("%w: base URL must be http(s), got %q", ErrInvalidConfig, cfg.BaseURL)
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ollama{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		policy:     cfg.Retry,
		logger:     logger,
	}, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

// Complete implements Generator.
func (o *Ollama) Complete(ctx context.Context, system, user string, temperature float64) (text string, err error) {
	defer func(start time.Time) { observe("ollama", "complete", start, err) }(time.Now())
	return o.chat(ctx, "complete", system, user, temperature, "")
}

// CompleteJSON implements Generator using Ollama's JSON output mode.
func (o *Ollama) CompleteJSON(ctx context.Context, system, user string, temperature float64, out any) (err error) {
	defer func(start time.Time) { observe("ollama", "complete_json", start, err) }(time.Now())

	text, err := o.chat(ctx, "complete_json", system+jsonInstruction, user, temperature, "json")
	if err != nil {
		return err
	}
	if err := decodeJSON(text, out); err != nil {
		return &GenerationError{Provider: "ollama", Op: "complete_json", Err: err}
	}
	return nil
}

func (o *Ollama) chat(ctx context.Context, op, system, user string, temperature float64, format string) (string, error) {
	req := ollamaRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Format:  format,
		Options: ollamaOptions{Temperature: temperature},
	}

	var text string
	err := retry.Do(ctx, o.policy, o.logger, func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		out, err := o.doRequest(ctx, op, req)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		var ge *GenerationError
		if errors.As(err, &ge) {
			return "", err
		}
		return "", &GenerationError{Provider: "ollama", Op: op, Err: err}
	}
	return text, nil
}

func (o *Ollama) doRequest(ctx context.Context, op string, req ollamaRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Retryable(&GenerationError{Provider: "ollama", Op: op, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GenerationError{Provider: "ollama", Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", &GenerationError{Provider: "ollama", Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &GenerationError{Provider: "ollama", Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}
	if parsed.Error != "" {
		return "", &GenerationError{Provider: "ollama", Op: op, StatusCode: resp.StatusCode, Err: errors.New(parsed.Error)}
	}
	if strings.TrimSpace(parsed.Message.Content) == "" {
		return "", &GenerationError{Provider: "ollama", Op: op, StatusCode: resp.StatusCode, Err: ErrEmptyResponse}
	}
	return parsed.Message.Content, nil
}
