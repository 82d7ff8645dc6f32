package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

const (
	defaultSearchK = 5
	maxSearchK     = 50
)

type askInput struct {
	Query       string `json:"query" jsonschema:"compliance or security question to answer"`
	SkipMemory  bool   `json:"skip_memory,omitempty" jsonschema:"answer without recalling or storing memory"`
	AutoApprove *bool  `json:"auto_approve,omitempty" jsonschema:"override the server's auto-approval setting"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"short-term memory session (alphanumeric, hyphen, underscore)"`
}

type askOutput struct {
	RunID              string   `json:"run_id"`
	Response           string   `json:"response"`
	Answer             string   `json:"answer"`
	QueryType          string   `json:"query_type"`
	CitationQuality    string   `json:"citation_quality"`
	ValidationNotes    string   `json:"validation_notes"`
	LoopCount          int      `json:"loop_count"`
	Sources            []string `json:"sources"`
	FollowUpQuestions  []string `json:"follow_up_questions"`
	Diagnostics        []string `json:"diagnostics"`
	Approved           bool     `json:"approved"`
	ConversationStored bool     `json:"conversation_stored"`
	ProfileConflicts   []string `json:"profile_conflicts"`
}

type memorySearchInput struct {
	Query string `json:"query" jsonschema:"text to match against past conversations"`
	K     int    `json:"k,omitempty" jsonschema:"maximum results (1-50, default 5)"`
}

type memoryHit struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"`
	Relevance float64 `json:"relevance"`
	Hybrid    float64 `json:"hybrid"`
}

type memorySearchOutput struct {
	Query   string      `json:"query"`
	Results []memoryHit `json:"results"`
	Count   int         `json:"count"`
}

type memoryStatsInput struct{}

type memoryStatsOutput struct {
	ShortTermCount     int    `json:"short_term_count"`
	ShortTermCapacity  int    `json:"short_term_capacity"`
	LongTermCount      int    `json:"long_term_count"`
	ProfileFacts       int    `json:"profile_facts"`
	ProfileLastUpdated string `json:"profile_last_updated"`
}

type profileShowInput struct{}

type profileShowOutput struct {
	Summary         string `json:"summary"`
	HasPersonalInfo bool   `json:"has_personal_info"`
	PreferenceCount int    `json:"preference_count"`
	ExpertiseCount  int    `json:"expertise_count"`
	Facts           int    `json:"facts"`
}

// instrument wraps a handler with invocation metrics.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := h(ctx, req, in)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a compliance or security question with cited sources, refining the answer until its citations are adequate",
	}, instrument(s, "ask", s.handleAsk))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search past conversations ranked by relevance, recency and importance",
	}, instrument(s, "memory_search", s.handleMemorySearch))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Report short-term, long-term and profile memory counts",
	}, instrument(s, "memory_stats", s.handleMemoryStats))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "profile_show",
		Description: "Show what has been learned about the user",
	}, instrument(s, "profile_show", s.handleProfileShow))
}

func (s *Server) handleAsk(ctx context.Context, req *mcp.CallToolRequest, in askInput) (*mcp.CallToolResult, askOutput, error) {
	if in.SessionID != "" {
		if err := logging.ValidateID(in.SessionID); err != nil {
			return nil, askOutput{}, fmt.Errorf("invalid session_id: %w", err)
		}
		ctx = logging.WithSessionID(ctx, in.SessionID)
	}

	res, err := s.runner.Run(ctx, in.Query, workflow.RunOptions{
		SkipMemory:  in.SkipMemory,
		AutoApprove: in.AutoApprove,
	})
	if err != nil {
		return nil, askOutput{}, err
	}

	return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Response}},
		}, askOutput{
			RunID:              res.RunID,
			Response:           res.Response,
			Answer:             res.Answer,
			QueryType:          string(res.QueryType),
			CitationQuality:    string(res.CitationQuality),
			ValidationNotes:    res.ValidationNotes,
			LoopCount:          res.LoopCount,
			Sources:            nonNil(res.Sources),
			FollowUpQuestions:  nonNil(res.FollowUpQuestions),
			Diagnostics:        nonNil(res.Diagnostics),
			Approved:           res.Approved,
			ConversationStored: res.ConversationStored,
			ProfileConflicts:   nonNil(res.ProfileConflicts),
		}, nil
}

func (s *Server) handleMemorySearch(ctx context.Context, _ *mcp.CallToolRequest, in memorySearchInput) (*mcp.CallToolResult, memorySearchOutput, error) {
	if in.Query == "" {
		return nil, memorySearchOutput{}, fmt.Errorf("invalid query: must not be empty")
	}
	k := in.K
	if k == 0 {
		k = defaultSearchK
	}
	if k < 1 || k > maxSearchK {
		return nil, memorySearchOutput{}, fmt.Errorf("invalid k %d: must be between 1 and %d", in.K, maxSearchK)
	}

	records := s.memory.Search(ctx, in.Query, k)
	out := memorySearchOutput{
		Query:   in.Query,
		Results: make([]memoryHit, 0, len(records)),
		Count:   len(records),
	}
	for _, r := range records {
		out.Results = append(out.Results, memoryHit{
			ID:        r.ID,
			Text:      r.Text,
			Timestamp: r.Timestamp,
			Relevance: r.Relevance,
			Hybrid:    r.Hybrid,
		})
	}

	text := "No relevant memories found."
	if len(records) > 0 {
		text = memory.FormatRecords(records)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) handleMemoryStats(ctx context.Context, _ *mcp.CallToolRequest, _ memoryStatsInput) (*mcp.CallToolResult, memoryStatsOutput, error) {
	st := s.memory.Stats(ctx)
	out := memoryStatsOutput{
		ShortTermCount:    st.ShortTermCount,
		ShortTermCapacity: st.ShortTermCapacity,
		LongTermCount:     st.LongTermCount,
		ProfileFacts:      st.ProfileFacts,
	}
	if !st.ProfileLastUpdated.IsZero() {
		out.ProfileLastUpdated = st.ProfileLastUpdated.UTC().Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleProfileShow(_ context.Context, _ *mcp.CallToolRequest, _ profileShowInput) (*mcp.CallToolResult, profileShowOutput, error) {
	if s.profile == nil {
		return nil, profileShowOutput{}, fmt.Errorf("profile memory is not configured")
	}
	stats := s.profile.Stats()
	summary := s.profile.Format()
	return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: summary}},
		}, profileShowOutput{
			Summary:         summary,
			HasPersonalInfo: stats.HasPersonalInfo,
			PreferenceCount: stats.PreferenceCount,
			ExpertiseCount:  stats.ExpertiseCount,
			Facts:           s.profile.FactCount(),
		}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
