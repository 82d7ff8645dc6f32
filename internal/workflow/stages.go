package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/retrieval"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

const (
	noHistoryText = "No conversation history available."
	noProfileText = "No user profile available."
	noMemoryText  = "No memory system available."

	defaultFactConfidence = 0.8
)

type intentStage struct{ e *Engine }

func (intentStage) Stage() Stage { return StageIntent }

func (h intentStage) Execute(ctx context.Context, s *State) error {
	e := h.e
	loopBack := s.LoopCount > 0 && s.Decision == validation.LoopToIntent

	s.UserContext = noHistoryText
	if e.deps.Memory != nil {
		s.UserContext = e.deps.Memory.ShortTerm(ctx).Context(true)
	}
	s.UserProfile = noProfileText
	if e.deps.Profile != nil {
		s.UserProfile = e.deps.Profile.Relevant(s.Query)
	}

	system, user := intentPrompt(s, loopBack)
	var reply struct {
		IntentAnalysis string   `json:"intent_analysis"`
		QueryType      string   `json:"query_type"`
		MissingContext []string `json:"missing_context"`
	}
	if err := e.deps.Generator.CompleteJSON(ctx, system, user, intentTemperature, &reply); err != nil {
		e.logger.Warn("structured intent analysis failed, using plain completion", zap.Error(err))
		text, ferr := e.deps.Generator.Complete(ctx, system, user, intentTemperature)
		if ferr != nil {
			return fmt.Errorf("analyze intent: %w", errors.Join(err, ferr))
		}
		s.IntentAnalysis = parseIntentText(text)
		s.QueryType = QueryGeneral
		s.MissingContext = []string{}
		return nil
	}

	s.IntentAnalysis = reply.IntentAnalysis
	s.QueryType = ParseQueryType(reply.QueryType)
	s.MissingContext = nonBlank(reply.MissingContext, 0)
	return nil
}

type retrieveStage struct{ e *Engine }

func (retrieveStage) Stage() Stage { return StageRetrieve }

func (h retrieveStage) Execute(ctx context.Context, s *State) error {
	e := h.e
	var enh *retrieval.Enhancement
	if s.LoopCount > 0 && s.Decision == validation.LoopToRetrieval {
		enh = &retrieval.Enhancement{Notes: s.ValidationNotes, Claims: s.UnsupportedClaims}
	}

	var (
		g        errgroup.Group
		chunks   []retrieval.Chunk
		scores   []float64
		memories = noMemoryText
	)
	if e.deps.Retriever != nil {
		g.Go(func() error {
			var err error
			chunks, scores, err = e.deps.Retriever.Retrieve(ctx, s.Query, enh)
			return err
		})
	}
	if e.deps.Memory != nil {
		g.Go(func() error {
			memories = e.deps.Memory.RelevantContext(ctx, s.Query, e.deps.RecallK)
			return nil
		})
	}
	err := g.Wait()

	if chunks == nil {
		chunks = []retrieval.Chunk{}
	}
	if scores == nil {
		scores = []float64{}
	}
	s.Chunks = chunks
	s.RetrievalScores = scores
	s.RelevantMemories = memories
	if err != nil {
		return fmt.Errorf("retrieve documents: %w", err)
	}
	return nil
}

type synthesizeStage struct{ e *Engine }

func (synthesizeStage) Stage() Stage { return StageSynthesize }

func (h synthesizeStage) Execute(ctx context.Context, s *State) error {
	answer, err := h.e.deps.Generator.Complete(ctx, synthSystem, synthPrompt(s), synthTemperature)
	if err != nil {
		h.e.logger.Warn("answer synthesis failed", zap.Error(err))
		answer = fmt.Sprintf("Error generating answer: %v", err)
	}
	s.Answer = answer
	return nil
}

type validateStage struct{ e *Engine }

func (validateStage) Stage() Stage { return StageValidate }

func (h validateStage) Execute(ctx context.Context, s *State) error {
	v := h.e.deps.Validator.Validate(ctx, validation.Input{
		Answer:     s.Answer,
		Query:      s.Query,
		QueryType:  string(s.QueryType),
		ChunkCount: len(s.Chunks),
	})
	claims := v.UnsupportedClaims
	if claims == nil {
		claims = []string{}
	}

	decision, reason := validation.Route(validation.RouteInput{
		Tier:       v.Tier,
		Previous:   s.PreviousCitationQuality,
		ChunkCount: len(s.Chunks),
		Notes:      v.Notes,
		Claims:     claims,
		LoopCount:  s.LoopCount,
	})

	s.CitationQuality = v.Tier
	s.ValidationNotes = v.Notes
	s.UnsupportedClaims = claims
	s.Decision = decision
	s.LoopReason = reason
	s.PreviousCitationQuality = v.Tier
	return nil
}

type followupsStage struct{ e *Engine }

func (followupsStage) Stage() Stage { return StageFollowups }

func (h followupsStage) Execute(ctx context.Context, s *State) error {
	if len(s.MissingContext) == 0 && len(s.UnsupportedClaims) == 0 {
		s.FollowUpQuestions = []string{}
		return nil
	}

	gen := h.e.deps.Generator
	var reply struct {
		Questions []string `json:"questions"`
	}
	err := gen.CompleteJSON(ctx, followupSystem, followupPrompt(s), followupTemperature, &reply)
	if err == nil {
		s.FollowUpQuestions = nonBlank(reply.Questions, maxFollowUpQuestions)
		return nil
	}

	h.e.logger.Warn("structured follow-up generation failed, using numbered list", zap.Error(err))
	text, ferr := gen.Complete(ctx, "", followupListPrompt(s), followupTemperature)
	if ferr != nil {
		return fmt.Errorf("generate follow-ups: %w", errors.Join(err, ferr))
	}
	s.FollowUpQuestions = parseNumberedList(text, maxFollowUpQuestions)
	return nil
}

type approvalStage struct{ e *Engine }

func (approvalStage) Stage() Stage { return StageApproval }

func (h approvalStage) Execute(ctx context.Context, s *State) error {
	s.FinalResponse = FormatResponse(s)
	if s.AutoApprove {
		s.Approved = true
		s.Feedback = autoApprovedFeedback
		return nil
	}
	if h.e.deps.Approver == nil {
		return errors.New("no approver configured")
	}

	a, err := h.e.deps.Approver.Approve(ctx, Review{
		Query:           s.Query,
		Response:        s.FinalResponse,
		QueryType:       s.QueryType,
		CitationQuality: s.CitationQuality,
	})
	if err != nil {
		return err
	}
	s.Approved = a.Approved
	s.Feedback = a.Feedback
	return nil
}

type storeStage struct{ e *Engine }

func (storeStage) Stage() Stage { return StageStore }

func (h storeStage) Execute(ctx context.Context, s *State) error {
	if !s.Approved || s.SkipMemory || h.e.deps.Memory == nil {
		return nil
	}

	meta := map[string]string{
		memory.MetaQueryType:       orUnknown(string(s.QueryType)),
		memory.MetaCitationQuality: orUnknown(string(s.CitationQuality)),
		memory.MetaLoopCount:       strconv.Itoa(s.LoopCount),
		memory.MetaHumanApproved:   "true",
		memory.MetaHumanFeedback:   s.Feedback,
	}
	id, err := h.e.deps.Memory.Remember(ctx, s.Query, s.Answer, meta)
	if err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	s.ConversationStored = true
	s.ConversationID = id
	return nil
}

type extractFactsStage struct{ e *Engine }

func (extractFactsStage) Stage() Stage { return StageExtractFacts }

// factReply keeps Confidence optional so a missing value takes the default.
type factReply struct {
	Category      string   `json:"category"`
	Field         string   `json:"field"`
	Value         string   `json:"value"`
	Confidence    *float64 `json:"confidence"`
	SourceContext string   `json:"source_context"`
}

func (h extractFactsStage) Execute(ctx context.Context, s *State) error {
	e := h.e
	if !s.Approved || e.deps.Profile == nil {
		return nil
	}

	var reply struct {
		Facts []factReply `json:"facts"`
	}
	if err := e.deps.Generator.CompleteJSON(ctx, factsSystem, factsPrompt(s), factsTemperature, &reply); err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}

	facts := make([]profile.Fact, 0, len(reply.Facts))
	for _, f := range reply.Facts {
		confidence := defaultFactConfidence
		if f.Confidence != nil {
			confidence = *f.Confidence
		}
		facts = append(facts, profile.Fact{
			Category:      strings.ToLower(strings.TrimSpace(f.Category)),
			Field:         strings.TrimSpace(f.Field),
			Value:         strings.TrimSpace(f.Value),
			Confidence:    confidence,
			SourceContext: f.SourceContext,
		})
	}
	if len(facts) == 0 {
		s.ExtractedFacts = facts
		return nil
	}

	res := e.deps.Profile.ApplyFacts(facts)
	conflicts := res.Conflicts
	if conflicts == nil {
		conflicts = []string{}
	}
	s.ExtractedFacts = facts
	s.ProfileUpdated = len(res.Updated) > 0
	s.ProfileConflicts = conflicts

	for _, c := range conflicts {
		e.publish(ctx, Event{RunID: s.RunID, Type: EventProfileConflict, Stage: StageExtractFacts.String(), Message: c})
	}
	return nil
}

func nonBlank(in []string, limit int) []string {
	out := []string{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
