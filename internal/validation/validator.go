package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/generator"
)

// MaxClaims caps the unsupported claims kept per verdict.
const MaxClaims = 5

// Temperature used for grading calls.
const Temperature = 0.1

const citationMarker = "[Source:"

var conversationalKeywords = []string{
	"what did we",
	"tell me about",
	"do you remember",
	"what do you know",
	"our conversation",
}

// FallbacksTotal counts verdicts produced by the heuristic grader.
var FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "complyd",
	Subsystem: "validation",
	Name:      "fallbacks_total",
	Help:      "Total number of validations graded by the citation heuristic",
})

// Input is the answer under review.
type Input struct {
	Answer     string
	Query      string
	QueryType  string
	ChunkCount int
}

// Verdict is the outcome of grading an answer.
type Verdict struct {
	Tier              Tier     `json:"citation_quality"`
	Notes             string   `json:"validation_notes"`
	UnsupportedClaims []string `json:"unsupported_claims"`
}

// result mirrors the structured reply requested from the generator.
type result struct {
	CitationQuality    string   `json:"citation_quality"`
	ValidationNotes    string   `json:"validation_notes"`
	MissingInformation []string `json:"missing_information"`
	UnsupportedClaims  []string `json:"unsupported_claims"`
}

// Validator grades answers with a generator and falls back to a citation
// count heuristic when the generator cannot produce a usable grade.
type Validator struct {
	gen      generator.Generator
	detector JSONDetector
	logger   *zap.Logger
}

// NewValidator creates a Validator. A nil generator always uses the heuristic.
func NewValidator(gen generator.Generator, detector JSONDetector, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{gen: gen, detector: detector, logger: logger}
}

// Validate grades in.
func (v *Validator) Validate(ctx context.Context, in Input) Verdict {
	if v.gen != nil {
		verdict, err := v.structured(ctx, in)
		if err == nil {
			return verdict
		}
		v.logger.Warn("structured validation failed, using heuristic", zap.Error(err))
	}
	FallbacksTotal.Inc()
	return v.Heuristic(in)
}

func (v *Validator) structured(ctx context.Context, in Input) (Verdict, error) {
	var r result
	if err := v.gen.CompleteJSON(ctx, systemPrompt, userPrompt(in), Temperature, &r); err != nil {
		return Verdict{}, err
	}
	tier := ParseTier(r.CitationQuality)
	if tier == TierUnknown {
		return Verdict{}, fmt.Errorf("unrecognized citation quality %q", r.CitationQuality)
	}
	return Verdict{
		Tier:              tier,
		Notes:             r.ValidationNotes,
		UnsupportedClaims: capClaims(r.UnsupportedClaims),
	}, nil
}

// Heuristic grades in by counting citation markers. Rules are checked in
// order and the first match wins.
func (v *Validator) Heuristic(in Input) Verdict {
	citations := strings.Count(in.Answer, citationMarker)
	long := len(in.Answer) > 100

	switch {
	case v.detector.Detect(in.Answer):
		return Verdict{
			Tier:              TierPoor,
			Notes:             "Answer is in JSON format instead of formatted text - needs regeneration",
			UnsupportedClaims: []string{"Entire answer is JSON formatted"},
		}
	case IsConversational(in.Query) && long:
		return Verdict{
			Tier:  TierGood,
			Notes: "Conversational query answered from memory (no document citations needed)",
		}
	case in.ChunkCount == 0 && long:
		return Verdict{
			Tier:  TierGood,
			Notes: "No compliance documents relevant to query, answered from general knowledge/memory",
		}
	case citations == 0 && in.ChunkCount > 0:
		return Verdict{
			Tier:              TierPoor,
			Notes:             "Documents available but not cited in answer",
			UnsupportedClaims: []string{"Answer should reference available compliance documents"},
		}
	case citations < 3 && in.ChunkCount > 5:
		return Verdict{
			Tier:              TierFair,
			Notes:             fmt.Sprintf("Only %d citations, could reference more available documents", citations),
			UnsupportedClaims: []string{fmt.Sprintf("Could add more citations from %d available sources", in.ChunkCount)},
		}
	case citations < 5:
		return Verdict{
			Tier:  TierGood,
			Notes: fmt.Sprintf("Found %d citations, adequate coverage", citations),
		}
	default:
		return Verdict{
			Tier:  TierExcellent,
			Notes: fmt.Sprintf("Found %d citations, comprehensive coverage", citations),
		}
	}
}

// IsConversational reports whether query asks about the conversation or the
// agent's memory rather than the documents.
func IsConversational(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range conversationalKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func capClaims(claims []string) []string {
	out := make([]string, 0, len(claims))
	for _, c := range claims {
		if strings.TrimSpace(c) == "" {
			continue
		}
		out = append(out, c)
		if len(out) == MaxClaims {
			break
		}
	}
	return out
}

const systemPrompt = `You review answers written by a compliance and security assistant.

Citation quality:
- Excellent: nearly every claim drawn from the compliance documents carries a [Source: ...] citation
- Good: most document claims are cited
- Fair: some document claims are cited but important citations are missing
- Poor: the answer makes claims about the documents without citing them

Not every question needs citations. Conversational or memory questions ("what did we discuss?")
and answers from general knowledge are fine without them and should be rated Good when helpful.
Only grade citations for statements that come from the compliance documents, and only list those
statements as unsupported claims when they lack a citation. For comparisons, both frameworks must
be cited when both are discussed.

Reply with JSON: {"citation_quality": "Excellent|Good|Fair|Poor", "validation_notes": "...",
"missing_information": ["..."], "unsupported_claims": ["..."]}`

func userPrompt(in Input) string {
	queryType := in.QueryType
	if queryType == "" {
		queryType = "unknown"
	}
	return fmt.Sprintf(`Answer to review:
%s

Compliance sources provided: %d
Query type: %s
User query: %q

Is this a question that needs document citations? If the answer uses the documents, are they cited?
If it is conversational, is it helpful? Grade the overall quality.`, in.Answer, in.ChunkCount, queryType, in.Query)
}
