package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/complyd/internal/retrieval"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

var banner = strings.Repeat("=", 80)

// FormatResponse renders the answer with its quality badge, metrics,
// follow-up questions, flagged claims and sources.
func FormatResponse(s *State) string {
	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString("AI COMPLIANCE & SECURITY AGENT - RESPONSE\n")
	b.WriteString(banner + "\n\n")

	quality := s.CitationQuality
	fmt.Fprintf(&b, "%s **Answer Quality: %s**\n\n", badge(quality), quality)
	b.WriteString(s.Answer)
	b.WriteString("\n\n")

	if len(s.RetrievalScores) > 0 {
		var sum float64
		for _, sc := range s.RetrievalScores {
			sum += sc
		}
		avg := sum / float64(len(s.RetrievalScores))
		b.WriteString("---\n\n### Quality Metrics:\n\n")
		fmt.Fprintf(&b, "- **Citation Quality:** %s\n", quality)
		fmt.Fprintf(&b, "- **Sources Retrieved:** %d documents\n", len(s.Chunks))
		fmt.Fprintf(&b, "- **Average Relevance:** %.1f%%\n", avg*100)
		if s.LoopCount > 0 {
			fmt.Fprintf(&b, "- **Refinement Iterations:** %d\n", s.LoopCount)
		}
		b.WriteString("\n")
	}

	if len(s.FollowUpQuestions) > 0 {
		b.WriteString("---\n\n### Follow-up Questions for More Specific Guidance:\n\n")
		for i, q := range s.FollowUpQuestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\n")
	}

	if len(s.UnsupportedClaims) > 0 && (quality == validation.TierFair || quality == validation.TierPoor) {
		b.WriteString("---\n\n### Claims Needing Additional Evidence:\n\n")
		for _, c := range s.UnsupportedClaims[:min(3, len(s.UnsupportedClaims))] {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	sources := sourceNames(s.Chunks)
	fmt.Fprintf(&b, "- Based on %d source document(s): %s\n", len(sources), strings.Join(sources, ", "))
	b.WriteString("\n" + banner + "\n")
	return b.String()
}

func badge(t validation.Tier) string {
	switch t {
	case validation.TierExcellent, validation.TierGood:
		return "🟢"
	case validation.TierFair:
		return "🟡"
	case validation.TierPoor:
		return "🔴"
	default:
		return "⚪"
	}
}

// sourceNames returns the sorted unique base names of the chunk sources.
func sourceNames(chunks []retrieval.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := []string{}
	for _, c := range chunks {
		name := filepath.Base(c.Source)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
