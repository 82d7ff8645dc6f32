package workflow

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/retrieval"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

// Stage identifies a step of the state machine.
type Stage int

const (
	StageIntent Stage = iota
	StageRetrieve
	StageSynthesize
	StageValidate
	StageFollowups
	StageApproval
	StageStore
	StageExtractFacts
	StageTerminal
)

// Stages lists the working stages in their default order.
func Stages() []Stage {
	return []Stage{
		StageIntent, StageRetrieve, StageSynthesize, StageValidate,
		StageFollowups, StageApproval, StageStore, StageExtractFacts,
	}
}

// String returns the metric and span label for s.
func (s Stage) String() string {
	switch s {
	case StageIntent:
		return "intent"
	case StageRetrieve:
		return "retrieve"
	case StageSynthesize:
		return "synthesize"
	case StageValidate:
		return "validate"
	case StageFollowups:
		return "followups"
	case StageApproval:
		return "approval"
	case StageStore:
		return "store"
	case StageExtractFacts:
		return "extract_facts"
	case StageTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// DisplayName is the human-readable name used in diagnostics.
func (s Stage) DisplayName() string {
	switch s {
	case StageIntent:
		return "Intent Analysis"
	case StageRetrieve:
		return "Document Retrieval"
	case StageSynthesize:
		return "Answer Synthesis"
	case StageValidate:
		return "Response Validation"
	case StageFollowups:
		return "Follow-up Generation"
	case StageApproval:
		return "Human Approval"
	case StageStore:
		return "Store Conversation"
	case StageExtractFacts:
		return "Extract Facts"
	default:
		return s.String()
	}
}

// QueryType classifies the user's question.
type QueryType string

const (
	QuerySecurityRisk QueryType = "security_risk"
	QueryCompliance   QueryType = "compliance"
	QueryComparison   QueryType = "comparison"
	QueryDefinition   QueryType = "definition"
	QueryGeneral      QueryType = "general"
)

// ParseQueryType maps free text to a QueryType. Unrecognized values are
// QueryGeneral.
func ParseQueryType(s string) QueryType {
	switch qt := QueryType(strings.ToLower(strings.TrimSpace(s))); qt {
	case QuerySecurityRisk, QueryCompliance, QueryComparison, QueryDefinition:
		return qt
	default:
		return QueryGeneral
	}
}

// State is the working data of one run. It is owned by a single goroutine
// except inside the retrieval fan-out, where each branch writes its own
// locals.
type State struct {
	RunID string
	Query string

	IntentAnalysis string
	QueryType      QueryType
	MissingContext []string
	UserContext    string
	UserProfile    string

	Chunks           []retrieval.Chunk
	RetrievalScores  []float64
	RelevantMemories string

	Answer string

	CitationQuality         validation.Tier
	ValidationNotes         string
	UnsupportedClaims       []string
	Decision                validation.Decision
	LoopCount               int
	PreviousCitationQuality validation.Tier
	LoopReason              string

	FollowUpQuestions []string

	Approved    bool
	Feedback    string
	AutoApprove bool

	SkipMemory         bool
	ConversationStored bool
	ConversationID     string

	ExtractedFacts   []profile.Fact
	ProfileUpdated   bool
	ProfileConflicts []string

	FinalResponse string
	Diagnostics   []string
}

// NewState returns the initial state for query.
func NewState(query string, autoApprove bool) *State {
	return &State{
		Query:             query,
		MissingContext:    []string{},
		Chunks:            []retrieval.Chunk{},
		RetrievalScores:   []float64{},
		UnsupportedClaims: []string{},
		FollowUpQuestions: []string{},
		ExtractedFacts:    []profile.Fact{},
		ProfileConflicts:  []string{},
		Diagnostics:       []string{},
		AutoApprove:       autoApprove,
	}
}

// Result is the observable outcome of a run.
type Result struct {
	RunID              string              `json:"run_id"`
	Response           string              `json:"response"`
	Answer             string              `json:"answer"`
	QueryType          QueryType           `json:"query_type"`
	CitationQuality    validation.Tier     `json:"citation_quality"`
	ValidationNotes    string              `json:"validation_notes"`
	LoopReason         string              `json:"loop_reason"`
	FollowUpQuestions  []string            `json:"follow_up_questions"`
	Diagnostics        []string            `json:"diagnostics"`
	Sources            []string            `json:"sources"`
	RetrievalScores    []float64           `json:"retrieval_scores"`
	LoopCount          int                 `json:"loop_count"`
	UnsupportedClaims  []string            `json:"unsupported_claims"`
	Approved           bool                `json:"approved"`
	Feedback           string              `json:"feedback"`
	ConversationStored bool                `json:"conversation_stored"`
	ConversationID     string              `json:"conversation_id"`
	ExtractedFacts     []profile.Fact      `json:"extracted_facts"`
	ProfileUpdated     bool                `json:"profile_updated"`
	ProfileConflicts   []string            `json:"profile_conflicts"`
	Decision           validation.Decision `json:"decision"`
}

// Result snapshots the state into a Result.
func (s *State) Result() *Result {
	return &Result{
		RunID:              s.RunID,
		Response:           s.FinalResponse,
		Answer:             s.Answer,
		QueryType:          s.QueryType,
		CitationQuality:    s.CitationQuality,
		ValidationNotes:    s.ValidationNotes,
		LoopReason:         s.LoopReason,
		FollowUpQuestions:  cloneStrings(s.FollowUpQuestions),
		Diagnostics:        cloneStrings(s.Diagnostics),
		Sources:            sourceNames(s.Chunks),
		RetrievalScores:    append([]float64{}, s.RetrievalScores...),
		LoopCount:          s.LoopCount,
		UnsupportedClaims:  cloneStrings(s.UnsupportedClaims),
		Approved:           s.Approved,
		Feedback:           s.Feedback,
		ConversationStored: s.ConversationStored,
		ConversationID:     s.ConversationID,
		ExtractedFacts:     append([]profile.Fact{}, s.ExtractedFacts...),
		ProfileUpdated:     s.ProfileUpdated,
		ProfileConflicts:   cloneStrings(s.ProfileConflicts),
		Decision:           s.Decision,
	}
}

func cloneStrings(in []string) []string {
	return append([]string{}, in...)
}

// StageHandler does the work of one stage. Handlers should assign their
// output fields only once they have succeeded.
type StageHandler interface {
	Stage() Stage
	Execute(ctx context.Context, state *State) error
}

// Retriever returns ranked document chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, enh *retrieval.Enhancement) ([]retrieval.Chunk, []float64, error)
}

// RunOptions adjusts a single run.
type RunOptions struct {
	// SkipMemory stops the exchange from being stored.
	SkipMemory bool
	// AutoApprove overrides the engine default when non-nil.
	AutoApprove *bool
}
