package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/generator"
	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

// DefaultMaxLoops bounds refinement loops per run.
const DefaultMaxLoops = 2

const diagnosticLimit = 100

var tracer = otel.Tracer("complyd/workflow")

// Deps are the collaborators a run uses. Generator is required; the rest
// degrade to empty context when nil.
type Deps struct {
	Generator generator.Generator
	Retriever Retriever
	Memory    *memory.Coordinator
	// Profile defaults to Memory.Profile().
	Profile *profile.Store
	// Validator defaults to one backed by Generator.
	Validator *validation.Validator
	Approver  Approver
	Publisher Publisher
	RecallK   int
	Logger    *zap.Logger
}

// Config tunes the state machine.
type Config struct {
	MaxLoops    int
	AutoApprove bool
}

// StageStatus is the lifecycle of a stage within a run.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageProgress reports a stage transition.
type StageProgress struct {
	RunID   string      `json:"run_id"`
	Stage   Stage       `json:"-"`
	Name    string      `json:"stage"`
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// ProgressCallback receives stage transitions.
type ProgressCallback func(StageProgress)

// Engine runs queries through the stages.
type Engine struct {
	deps     Deps
	cfg      Config
	handlers map[Stage]StageHandler
	progress ProgressCallback
	logger   *zap.Logger
}

// NewEngine creates an engine with the default stage handlers registered.
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	if deps.Generator == nil {
		return nil, ErrNoGenerator
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Profile == nil && deps.Memory != nil {
		deps.Profile = deps.Memory.Profile()
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewValidator(deps.Generator, validation.DefaultJSONDetector(), deps.Logger)
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.RecallK <= 0 {
		deps.RecallK = memory.DefaultRecallK
	}
	if cfg.MaxLoops <= 0 {
		cfg.MaxLoops = DefaultMaxLoops
	}

	e := &Engine{
		deps:     deps,
		cfg:      cfg,
		handlers: make(map[Stage]StageHandler),
		logger:   deps.Logger.Named("workflow"),
	}
	e.RegisterHandler(intentStage{e})
	e.RegisterHandler(retrieveStage{e})
	e.RegisterHandler(synthesizeStage{e})
	e.RegisterHandler(validateStage{e})
	e.RegisterHandler(followupsStage{e})
	e.RegisterHandler(approvalStage{e})
	e.RegisterHandler(storeStage{e})
	e.RegisterHandler(extractFactsStage{e})
	return e, nil
}

// RegisterHandler replaces the handler for handler.Stage().
func (e *Engine) RegisterHandler(handler StageHandler) {
	e.handlers[handler.Stage()] = handler
}

// OnProgress sets the progress callback.
func (e *Engine) OnProgress(callback ProgressCallback) {
	e.progress = callback
}

// MaxLoops returns the configured loop bound.
func (e *Engine) MaxLoops() int { return e.cfg.MaxLoops }

// Run answers query. The only error it returns is ErrQueryTooShort; stage
// failures are reported in Result.Diagnostics.
func (e *Engine) Run(ctx context.Context, query string, opts RunOptions) (*Result, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < MinQueryLength {
		return nil, ErrQueryTooShort
	}

	autoApprove := e.cfg.AutoApprove
	if opts.AutoApprove != nil {
		autoApprove = *opts.AutoApprove
	}
	s := NewState(query, autoApprove)
	s.SkipMemory = opts.SkipMemory
	s.RunID = uuid.NewString()

	ctx, span := tracer.Start(ctx, "workflow.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", s.RunID))

	start := time.Now()
	for stage := StageIntent; stage != StageTerminal; stage = e.next(stage, s) {
		e.runStage(ctx, stage, s)
	}

	quality := string(s.CitationQuality)
	if quality == "" {
		quality = string(validation.TierUnknown)
	}
	RunsTotal.WithLabelValues(quality).Inc()
	span.SetAttributes(
		attribute.String("citation_quality", quality),
		attribute.Int("loop_count", s.LoopCount),
		attribute.Int("diagnostics", len(s.Diagnostics)),
	)

	res := s.Result()
	e.logger.Info("run completed", append(logging.ContextFields(ctx),
		zap.String("run_id", s.RunID),
		zap.String("query_type", string(s.QueryType)),
		zap.String("citation_quality", quality),
		zap.Int("loop_count", s.LoopCount),
		zap.Int("diagnostics", len(s.Diagnostics)),
		zap.Duration("duration", time.Since(start)),
	)...)
	e.publish(ctx, Event{RunID: s.RunID, Type: EventCompleted, Result: res})
	return res, nil
}

func (e *Engine) next(stage Stage, s *State) Stage {
	switch stage {
	case StageIntent:
		return StageRetrieve
	case StageRetrieve:
		return StageSynthesize
	case StageSynthesize:
		return StageValidate
	case StageValidate:
		return e.route(s)
	case StageFollowups:
		return StageApproval
	case StageApproval:
		return StageStore
	case StageStore:
		return StageExtractFacts
	default:
		return StageTerminal
	}
}

// route follows the validation decision, forcing Continue once the loop
// bound would be exceeded.
func (e *Engine) route(s *State) Stage {
	switch s.Decision {
	case validation.LoopToIntent, validation.LoopToRetrieval:
		if s.LoopCount+1 > e.cfg.MaxLoops {
			e.logger.Debug("loop bound reached",
				zap.String("run_id", s.RunID),
				zap.String("requested", s.Decision.String()),
				zap.Int("loop_count", s.LoopCount))
			s.Decision = validation.Continue
			s.LoopReason = validation.ReasonMaxLoopsReached
			LoopsTotal.WithLabelValues("max_loops").Inc()
			return StageFollowups
		}
		s.LoopCount++
		LoopsTotal.WithLabelValues(s.Decision.String()).Inc()
		if s.Decision == validation.LoopToIntent {
			return StageIntent
		}
		return StageRetrieve
	case validation.Continue:
		LoopsTotal.WithLabelValues(validation.Continue.String()).Inc()
		return StageFollowups
	default:
		s.Decision = validation.Continue
		return StageFollowups
	}
}

func (e *Engine) runStage(ctx context.Context, stage Stage, s *State) {
	ctx, span := tracer.Start(ctx, "workflow."+stage.String())
	defer span.End()

	e.report(StageProgress{RunID: s.RunID, Stage: stage, Name: stage.DisplayName(), Status: StageStarted})
	start := time.Now()

	handler, ok := e.handlers[stage]
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for stage %s", stage)
	} else {
		err = execute(ctx, handler, s)
	}
	StageDuration.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(ctx, stage, s, err)
		return
	}
	e.report(StageProgress{RunID: s.RunID, Stage: stage, Name: stage.DisplayName(), Status: StageCompleted})
}

// execute converts a handler panic into an error.
func execute(ctx context.Context, h StageHandler, s *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Execute(ctx, s)
}

// fail records a diagnostic and applies the stage's safe defaults.
func (e *Engine) fail(ctx context.Context, stage Stage, s *State, err error) {
	StageFailures.WithLabelValues(stage.String()).Inc()
	msg := err.Error()
	diag := fmt.Sprintf("Error in %s: %s", stage.DisplayName(), truncateRunes(msg, diagnosticLimit))
	s.Diagnostics = append(s.Diagnostics, diag)

	switch stage {
	case StageValidate:
		s.Decision = validation.Continue
		s.CitationQuality = validation.TierUnknown
		s.ValidationNotes = "Validation failed: " + msg
	case StageApproval:
		s.Approved = false
		s.Feedback = "Error during approval: " + msg
	}

	e.logger.Warn("stage failed", append(logging.ContextFields(ctx),
		zap.String("run_id", s.RunID),
		zap.String("stage", stage.String()),
		zap.Error(err),
	)...)
	e.report(StageProgress{RunID: s.RunID, Stage: stage, Name: stage.DisplayName(), Status: StageFailed, Message: diag})
	e.publish(ctx, Event{RunID: s.RunID, Type: EventStageFailed, Stage: stage.String(), Message: diag})
}

func (e *Engine) report(p StageProgress) {
	if e.progress != nil {
		e.progress(p)
	}
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := e.deps.Publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn("publishing run event failed",
			zap.String("run_id", ev.RunID),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
