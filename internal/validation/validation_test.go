package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complyd/internal/config"
	"github.com/fyrsmithlabs/complyd/internal/generator"
)

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierExcellent, ParseTier(" excellent "))
	assert.Equal(t, TierFair, ParseTier("FAIR"))
	assert.Equal(t, TierUnknown, ParseTier("great"))
	assert.Equal(t, TierUnknown, ParseTier(""))
}

func TestTierOrdinal(t *testing.T) {
	assert.Equal(t, 0, TierPoor.Ordinal())
	assert.Equal(t, 1, TierFair.Ordinal())
	assert.Equal(t, 2, TierGood.Ordinal())
	assert.Equal(t, 3, TierExcellent.Ordinal())
	assert.Equal(t, 0, TierUnknown.Ordinal())
}

func TestDecisionText(t *testing.T) {
	b, err := LoopToRetrieval.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "loop_to_retrieval", string(b))
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "loop_to_intent", LoopToIntent.String())

	var d Decision
	require.NoError(t, d.UnmarshalText([]byte("loop_to_retrieval")))
	assert.Equal(t, LoopToRetrieval, d)
	assert.Error(t, d.UnmarshalText([]byte("retry")))
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name     string
		in       RouteInput
		decision Decision
		reason   string
	}{
		{
			name:     "good passes",
			in:       RouteInput{Tier: TierGood, ChunkCount: 4},
			decision: Continue,
			reason:   ReasonPassed,
		},
		{
			name:     "excellent passes even when degraded",
			in:       RouteInput{Tier: TierExcellent, ChunkCount: 4, LoopCount: 1, Previous: TierExcellent},
			decision: Continue,
			reason:   ReasonPassed,
		},
		{
			name:     "no documents stops the loop",
			in:       RouteInput{Tier: TierFair, ChunkCount: 0, Notes: "missing PCI scope"},
			decision: Continue,
			reason:   ReasonNoDocuments,
		},
		{
			name:     "same tier as previous",
			in:       RouteInput{Tier: TierFair, Previous: TierFair, ChunkCount: 8, LoopCount: 1},
			decision: Continue,
			reason:   ReasonNotImproving,
		},
		{
			name:     "degraded after a loop",
			in:       RouteInput{Tier: TierPoor, Previous: TierFair, ChunkCount: 8, LoopCount: 1, Claims: []string{"x"}},
			decision: Continue,
			reason:   ReasonDegraded,
		},
		{
			name:     "missing notes loop to intent",
			in:       RouteInput{Tier: TierPoor, ChunkCount: 8, Notes: "Missing the audit period", Claims: []string{"x"}},
			decision: LoopToIntent,
			reason:   "Missing context: Missing the audit period",
		},
		{
			name:     "no claims loop to intent",
			in:       RouteInput{Tier: TierFair, ChunkCount: 8, Notes: "thin answer"},
			decision: LoopToIntent,
			reason:   "Missing context: thin answer",
		},
		{
			name:     "claims loop to retrieval",
			in:       RouteInput{Tier: TierFair, ChunkCount: 8, Notes: "uncited controls", Claims: []string{"CC6.1 requires MFA"}},
			decision: LoopToRetrieval,
			reason:   ReasonNeedSources,
		},
		{
			name:     "improved after a loop keeps refining",
			in:       RouteInput{Tier: TierFair, Previous: TierPoor, ChunkCount: 8, LoopCount: 1, Claims: []string{"x"}},
			decision: LoopToRetrieval,
			reason:   ReasonNeedSources,
		},
		{
			name:     "ungraded continues",
			in:       RouteInput{Tier: TierUnknown, ChunkCount: 8},
			decision: Continue,
			reason:   ReasonUngraded,
		},
		{
			name:     "empty tier continues",
			in:       RouteInput{ChunkCount: 8},
			decision: Continue,
			reason:   ReasonUngraded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, reason := Route(tt.in)
			assert.Equal(t, tt.decision, d)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestRoute_Deterministic(t *testing.T) {
	in := RouteInput{Tier: TierFair, Previous: TierPoor, ChunkCount: 3, Notes: "n", Claims: []string{"a", "b"}, LoopCount: 1}
	d0, r0 := Route(in)
	for i := 0; i < 50; i++ {
		d, r := Route(in)
		require.Equal(t, d0, d)
		require.Equal(t, r0, r)
	}
}

func TestRoute_ZeroChunksFairContinues(t *testing.T) {
	d, reason := Route(RouteInput{Tier: TierFair, ChunkCount: 0, LoopCount: 0})
	assert.Equal(t, Continue, d)
	assert.Equal(t, ReasonNoDocuments, reason)
}

func TestRoute_FairThenFairContinues(t *testing.T) {
	first, _ := Route(RouteInput{Tier: TierFair, ChunkCount: 6, Claims: []string{"claim"}})
	assert.Equal(t, LoopToRetrieval, first)

	second, reason := Route(RouteInput{Tier: TierFair, Previous: TierFair, ChunkCount: 6, Claims: []string{"claim"}, LoopCount: 1})
	assert.Equal(t, Continue, second)
	assert.Equal(t, ReasonNotImproving, reason)
}

func TestJSONDetector(t *testing.T) {
	d := DefaultJSONDetector()
	assert.True(t, d.Detect(`  {"answer": "x"}`))
	assert.True(t, d.Detect(`Here you go: "title": "SOC 2"`))
	assert.False(t, d.Detect("SOC 2 is an attestation report [Source: soc2.pdf]"))

	d.Enabled = false
	assert.False(t, d.Detect(`{"answer": "x"}`))

	custom := NewJSONDetector(config.JSONDetectorConfig{Enabled: true, Prefixes: []string{"["}, Markers: []string{`"sections":`}})
	assert.True(t, custom.Detect(`["a"]`))
	assert.True(t, custom.Detect(`x "sections": y`))
	assert.False(t, custom.Detect(`{"a": 1}`))
}

func TestHeuristic(t *testing.T) {
	long := strings.Repeat("Access reviews are performed quarterly. ", 4)
	cite := func(n int) string {
		return long + strings.Repeat(" [Source: soc2.pdf]", n)
	}
	v := NewValidator(nil, DefaultJSONDetector(), nil)

	tests := []struct {
		name   string
		in     Input
		tier   Tier
		notes  string
		claims []string
	}{
		{
			name:   "json output",
			in:     Input{Answer: `{"title": "SOC 2"}`, ChunkCount: 3},
			tier:   TierPoor,
			notes:  "Answer is in JSON format instead of formatted text - needs regeneration",
			claims: []string{"Entire answer is JSON formatted"},
		},
		{
			name:  "conversational",
			in:    Input{Answer: long, Query: "What did we talk about yesterday?", ChunkCount: 6},
			tier:  TierGood,
			notes: "Conversational query answered from memory (no document citations needed)",
		},
		{
			name:  "no documents",
			in:    Input{Answer: long, Query: "How should I rotate keys?"},
			tier:  TierGood,
			notes: "No compliance documents relevant to query, answered from general knowledge/memory",
		},
		{
			name:   "uncited documents",
			in:     Input{Answer: long, Query: "SOC 2 access controls", ChunkCount: 2},
			tier:   TierPoor,
			notes:  "Documents available but not cited in answer",
			claims: []string{"Answer should reference available compliance documents"},
		},
		{
			name:   "few citations with many chunks",
			in:     Input{Answer: cite(2), Query: "SOC 2 access controls", ChunkCount: 8},
			tier:   TierFair,
			notes:  "Only 2 citations, could reference more available documents",
			claims: []string{"Could add more citations from 8 available sources"},
		},
		{
			name:  "adequate",
			in:    Input{Answer: cite(4), Query: "SOC 2 access controls", ChunkCount: 8},
			tier:  TierGood,
			notes: "Found 4 citations, adequate coverage",
		},
		{
			name:  "comprehensive",
			in:    Input{Answer: cite(6), Query: "SOC 2 access controls", ChunkCount: 8},
			tier:  TierExcellent,
			notes: "Found 6 citations, comprehensive coverage",
		},
		{
			name:  "short answer without documents falls through",
			in:    Input{Answer: "Yes.", Query: "Is MFA required?"},
			tier:  TierGood,
			notes: "Found 0 citations, adequate coverage",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Heuristic(tt.in)
			assert.Equal(t, tt.tier, got.Tier)
			assert.Equal(t, tt.notes, got.Notes)
			assert.Equal(t, tt.claims, got.UnsupportedClaims)
		})
	}
}

func TestValidate_Structured(t *testing.T) {
	stub := &generator.Stub{JSONFn: func(system, user string) (string, error) {
		return `{"citation_quality": "fair", "validation_notes": "two claims uncited",
			"unsupported_claims": ["a", "b", "", "c", "d", "e", "f"]}`, nil
	}}
	v := NewValidator(stub, DefaultJSONDetector(), nil)

	got := v.Validate(context.Background(), Input{Answer: "x", Query: "What is CC6.1?", QueryType: "definition", ChunkCount: 4})
	assert.Equal(t, TierFair, got.Tier)
	assert.Equal(t, "two claims uncited", got.Notes)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got.UnsupportedClaims)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, Temperature, calls[0].Temperature)
	assert.Contains(t, calls[0].User, "Compliance sources provided: 4")
	assert.Contains(t, calls[0].User, "Query type: definition")
}

func TestValidate_FallsBackOnGeneratorError(t *testing.T) {
	stub := &generator.Stub{JSONFn: func(string, string) (string, error) {
		return "", errors.New("connection refused")
	}}
	v := NewValidator(stub, DefaultJSONDetector(), nil)

	got := v.Validate(context.Background(), Input{Answer: "No citations here.", Query: "PCI DSS 8.3", ChunkCount: 3})
	assert.Equal(t, TierPoor, got.Tier)
	assert.Equal(t, "Documents available but not cited in answer", got.Notes)
}

func TestValidate_FallsBackOnUnknownTier(t *testing.T) {
	stub := &generator.Stub{JSONFn: func(string, string) (string, error) {
		return `{"citation_quality": "Stellar", "validation_notes": "?"}`, nil
	}}
	v := NewValidator(stub, DefaultJSONDetector(), nil)

	got := v.Validate(context.Background(), Input{Answer: "See [Source: a] [Source: b]", Query: "HIPAA", ChunkCount: 2})
	assert.Equal(t, TierGood, got.Tier)
	assert.Equal(t, "Found 2 citations, adequate coverage", got.Notes)
}

func TestIsConversational(t *testing.T) {
	assert.True(t, IsConversational("Do you remember my role?"))
	assert.True(t, IsConversational("tell me about our last chat"))
	assert.False(t, IsConversational("What is ISO 27001?"))
}
