// Package generator talks to text generation backends.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when a backend answers with no content.
var ErrEmptyResponse = errors.New("empty response from generator")

// ErrInvalidConfig is returned for unusable generator settings.
var ErrInvalidConfig = errors.New("invalid generator config")

// Generator produces completions. CompleteJSON decodes a structured answer
// into out and fails with a *GenerationError when the backend or the
// decoding fails.
type Generator interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
	CompleteJSON(ctx context.Context, system, user string, temperature float64, out any) error
}

// GenerationError describes a failed generation call.
type GenerationError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// HTTPStatus implements retry.StatusCoder.
func (e *GenerationError) HTTPStatus() int { return e.StatusCode }

// jsonInstruction is appended to system prompts for structured calls.
const jsonInstruction = "\n\nRespond with a single JSON object only. Do not wrap it in markdown."

// decodeJSON unmarshals the first JSON object in text, tolerating code fences
// and surrounding prose.
func decodeJSON(text string, out any) error {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), out); err != nil {
		return fmt.Errorf("decoding JSON response: %w", err)
	}
	return nil
}
