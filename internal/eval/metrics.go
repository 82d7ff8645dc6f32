package eval

import (
	"strings"

	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

// Scores are precision, recall and F1 for one extraction.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// RecallCoverage is the fraction of expected facts found in response,
// compared case-insensitively. No expected facts scores 1.
func RecallCoverage(expected []string, response string) float64 {
	if len(expected) == 0 {
		return 1
	}
	lower := strings.ToLower(response)
	found := 0
	for _, f := range expected {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" && strings.Contains(lower, f) {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

// FactScores matches extracted facts against expected ones. A match needs
// equal category, field and trimmed value, ignoring case. Each extracted
// fact matches at most one expected fact.
func FactScores(expected []ExpectedFact, extracted []profile.Fact) Scores {
	if len(expected) == 0 && len(extracted) == 0 {
		return Scores{Precision: 1, Recall: 1, F1: 1}
	}

	used := make([]bool, len(extracted))
	matched := 0
	for _, want := range expected {
		for i, got := range extracted {
			if !used[i] && factMatches(want, got) {
				used[i] = true
				matched++
				break
			}
		}
	}

	var s Scores
	if len(extracted) > 0 {
		s.Precision = float64(matched) / float64(len(extracted))
	}
	if len(expected) > 0 {
		s.Recall = float64(matched) / float64(len(expected))
	} else {
		s.Recall = 1
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

func factMatches(want ExpectedFact, got profile.Fact) bool {
	return fold(want.Category) == fold(got.Category) &&
		fold(want.Field) == fold(got.Field) &&
		fold(want.Value) == fold(got.Value)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// meetsQuality reports whether got is at least floor. An empty floor
// always passes; an ungraded answer never does.
func meetsQuality(got validation.Tier, floor string) bool {
	if floor == "" {
		return true
	}
	if got == validation.TierUnknown || got == "" {
		return false
	}
	return got.Ordinal() >= validation.ParseTier(floor).Ordinal()
}
