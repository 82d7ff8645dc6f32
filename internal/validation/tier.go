// Package validation grades generated answers and decides whether the
// workflow should refine them.
package validation

import (
	"fmt"
	"strings"
)

// Tier is the citation quality of an answer.
type Tier string

const (
	TierExcellent Tier = "Excellent"
	TierGood      Tier = "Good"
	TierFair      Tier = "Fair"
	TierPoor      Tier = "Poor"
	TierUnknown   Tier = "Unknown"
)

// ParseTier maps free text to a Tier, case-insensitively. Anything else is
// TierUnknown.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excellent":
		return TierExcellent
	case "good":
		return TierGood
	case "fair":
		return TierFair
	case "poor":
		return TierPoor
	default:
		return TierUnknown
	}
}

// Ordinal ranks tiers from Poor (0) to Excellent (3). Ungraded tiers rank
// with Poor.
func (t Tier) Ordinal() int {
	switch t {
	case TierFair:
		return 1
	case TierGood:
		return 2
	case TierExcellent:
		return 3
	default:
		return 0
	}
}

// Passing reports whether t needs no refinement.
func (t Tier) Passing() bool {
	return t == TierGood || t == TierExcellent
}

// Decision is the routing outcome after validation.
type Decision int

const (
	Continue Decision = iota
	LoopToIntent
	LoopToRetrieval
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case LoopToIntent:
		return "loop_to_intent"
	case LoopToRetrieval:
		return "loop_to_retrieval"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "continue":
		*d = Continue
	case "loop_to_intent":
		*d = LoopToIntent
	case "loop_to_retrieval":
		*d = LoopToRetrieval
	default:
		return fmt.Errorf("unknown decision %q", text)
	}
	return nil
}
