package validation

import "strings"

// Loop reasons reported with each routing decision.
const (
	ReasonPassed          = "Validation passed"
	ReasonNoDocuments     = "No compliance documents found - query may not be compliance-related"
	ReasonNotImproving    = "Quality not improving - stopping to prevent infinite loop"
	ReasonDegraded        = "Quality degraded from previous attempt"
	ReasonMissingPrefix   = "Missing context: "
	ReasonNeedSources     = "Need better sources for unsupported claims"
	ReasonUngraded        = "Validation inconclusive"
	ReasonMaxLoopsReached = "maximum refinement loops reached"
)

// RouteInput is everything Route looks at.
type RouteInput struct {
	Tier       Tier
	Previous   Tier
	ChunkCount int
	Notes      string
	Claims     []string
	LoopCount  int
}

// Route decides whether to continue or refine. It is pure: the same input
// always yields the same decision and reason.
func Route(in RouteInput) (Decision, string) {
	switch in.Tier {
	case TierGood, TierExcellent:
		return Continue, ReasonPassed

	case TierPoor, TierFair:
		if in.ChunkCount == 0 {
			return Continue, ReasonNoDocuments
		}
		if in.Previous != "" && in.Tier == in.Previous {
			return Continue, ReasonNotImproving
		}
		if in.LoopCount > 0 && !improved(in.Tier, in.Previous) {
			return Continue, ReasonDegraded
		}
		if strings.Contains(strings.ToLower(in.Notes), "missing") || len(in.Claims) == 0 {
			return LoopToIntent, ReasonMissingPrefix + in.Notes
		}
		return LoopToRetrieval, ReasonNeedSources

	default:
		return Continue, ReasonUngraded
	}
}

// improved is false when there is no previous grade to compare against.
func improved(current, previous Tier) bool {
	if previous == "" {
		return false
	}
	return current.Ordinal() > previous.Ordinal()
}
