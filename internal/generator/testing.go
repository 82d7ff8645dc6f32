package generator

import (
	"context"
	"sync"
)

// Call records one request made to a Stub.
type Call struct {
	Op          string
	System      string
	User        string
	Temperature float64
}

// Stub is a scripted Generator for tests. TextFn answers Complete, JSONFn
// returns the raw JSON for CompleteJSON. A nil func fails the call.
type Stub struct {
	TextFn func(system, user string) (string, error)
	JSONFn func(system, user string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Complete implements Generator.
func (s *Stub) Complete(_ context.Context, system, user string, temperature float64) (string, error) {
	s.record("complete", system, user, temperature)
	if s.TextFn == nil {
		return "", &GenerationError{Provider: "stub", Op: "complete", Err: ErrEmptyResponse}
	}
	return s.TextFn(system, user)
}

// CompleteJSON implements Generator.
func (s *Stub) CompleteJSON(_ context.Context, system, user string, temperature float64, out any) error {
	s.record("complete_json", system, user, temperature)
	if s.JSONFn == nil {
		return &GenerationError{Provider: "stub", Op: "complete_json", Err: ErrEmptyResponse}
	}
	raw, err := s.JSONFn(system, user)
	if err != nil {
		return &GenerationError{Provider: "stub", Op: "complete_json", Err: err}
	}
	if err := decodeJSON(raw, out); err != nil {
		return &GenerationError{Provider: "stub", Op: "complete_json", Err: err}
	}
	return nil
}

// Calls returns the recorded requests in order.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Stub) record(op, system, user string, temperature float64) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, System: system, User: user, Temperature: temperature})
	s.mu.Unlock()
}
