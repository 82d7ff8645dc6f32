package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/complyd/internal/retrieval"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

func TestFormatResponse(t *testing.T) {
	s := NewState("How is access reviewed?", true)
	s.Answer = "Quarterly reviews [Source: soc2.md]"
	s.CitationQuality = validation.TierFair
	s.Chunks = []retrieval.Chunk{
		{Source: "/docs/soc2.md"},
		{Source: "/docs/iso27001.md"},
		{Source: "other/soc2.md"},
	}
	s.RetrievalScores = []float64{0.9, 0.8, 0.7}
	s.LoopCount = 1
	s.FollowUpQuestions = []string{"Which systems are in scope?", "Who approves access?"}
	s.UnsupportedClaims = []string{"a", "b", "c", "d"}

	out := FormatResponse(s)

	lines := strings.Split(out, "\n")
	assert.Equal(t, strings.Repeat("=", 80), lines[0])
	assert.Equal(t, "AI COMPLIANCE & SECURITY AGENT - RESPONSE", lines[1])
	assert.Contains(t, out, "🟡 **Answer Quality: Fair**")
	assert.Contains(t, out, "- **Sources Retrieved:** 3 documents")
	assert.Contains(t, out, "- **Average Relevance:** 80.0%")
	assert.Contains(t, out, "- **Refinement Iterations:** 1")
	assert.Contains(t, out, "1. Which systems are in scope?\n2. Who approves access?\n")
	assert.Contains(t, out, "- a\n- b\n- c\n")
	assert.NotContains(t, out, "- d\n")
	assert.Contains(t, out, "- Based on 2 source document(s): iso27001.md, soc2.md\n")
	assert.True(t, strings.HasSuffix(out, strings.Repeat("=", 80)+"\n"))

	order := []string{"Answer Quality", "Quality Metrics", "Follow-up Questions", "Claims Needing Additional Evidence", "Based on"}
	last := -1
	for _, section := range order {
		idx := strings.Index(out, section)
		assert.Greater(t, idx, last, section)
		last = idx
	}
}

func TestFormatResponse_Minimal(t *testing.T) {
	s := NewState("What is SOC 2?", true)
	s.Answer = "An attestation report."
	s.CitationQuality = validation.TierGood
	s.UnsupportedClaims = []string{"ignored for passing tiers"}

	out := FormatResponse(s)
	assert.Contains(t, out, "🟢 **Answer Quality: Good**")
	assert.NotContains(t, out, "Quality Metrics")
	assert.NotContains(t, out, "Refinement Iterations")
	assert.NotContains(t, out, "Follow-up Questions")
	assert.NotContains(t, out, "Claims Needing Additional Evidence")
	assert.Contains(t, out, "- Based on 0 source document(s): \n")
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "🟢", badge(validation.TierExcellent))
	assert.Equal(t, "🔴", badge(validation.TierPoor))
	assert.Equal(t, "⚪", badge(validation.TierUnknown))
	assert.Equal(t, "⚪", badge(""))
}

func TestParseNumberedList(t *testing.T) {
	text := "Here are some questions:\n1. Where is data stored?\n2) no dot here\n2. Who has access?\n- bullet\n3. Is it encrypted?\n4. Too many?"
	assert.Equal(t, []string{"Where is data stored?", "Who has access?", "Is it encrypted?"}, parseNumberedList(text, 3))
	assert.Empty(t, parseNumberedList("nothing numbered", 3))
}

func TestParseIntentText(t *testing.T) {
	assert.Equal(t, "defines SOC 2", parseIntentText("query_type: definition\nintent_analysis: defines SOC 2\nmore"))
	assert.Equal(t, "Query analysis", parseIntentText("free text"))
}

func TestDocumentContext(t *testing.T) {
	out := documentContext([]retrieval.Chunk{{Content: "body", Source: "/x/nist.md", Locator: "3", Score: 0.51234}})
	assert.Equal(t, "\n--- Source 1: nist.md (Page 3, Relevance: 0.512) ---\nbody\n", out)

	s := NewState("q", true)
	assert.Contains(t, synthPrompt(s), noDocumentsText)
}
