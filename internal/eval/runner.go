package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

const citationMarker = "[Source:"

// Engine answers queries.
type Engine interface {
	Run(ctx context.Context, query string, opts workflow.RunOptions) (*workflow.Result, error)
}

// CaseResult is one JSON line of a run file.
type CaseResult struct {
	Suite           string         `json:"suite"`
	ID              string         `json:"id"`
	Query           string         `json:"query"`
	FactType        string         `json:"fact_type,omitempty"`
	QueryType       string         `json:"query_type,omitempty"`
	CitationQuality string         `json:"citation_quality,omitempty"`
	CitationCount   int            `json:"citation_count"`
	LoopCount       int            `json:"loop_count"`
	ResponseLength  int            `json:"response_length"`
	Passed          bool           `json:"passed"`
	MemoryScore     *float64       `json:"memory_score,omitempty"`
	Extraction      *Scores        `json:"extraction,omitempty"`
	ExpectedFacts   any            `json:"expected_facts,omitempty"`
	ExtractedFacts  []profile.Fact `json:"extracted_facts,omitempty"`
	LatencySeconds  float64        `json:"latency_seconds"`
	Error           string         `json:"error,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Options configures a Runner.
type Options struct {
	// OutputDir receives one run_<timestamp>.jsonl file per run. Empty
	// disables the file.
	OutputDir string

	// IsolateMemory clears long-term memory before each memory case.
	IsolateMemory bool

	Logger *zap.Logger
}

// Runner drives the engine through a dataset.
type Runner struct {
	engine Engine
	memory *memory.Coordinator
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewRunner creates a Runner. coord may be nil when the dataset has no
// memory cases.
func NewRunner(engine Engine, coord *memory.Coordinator, opts Options) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{engine: engine, memory: coord, opts: opts, logger: logger, now: time.Now}, nil
}

// Run executes every case in order and returns the summary. Case failures
// are recorded in the results; only output errors abort the run.
func (r *Runner) Run(ctx context.Context, ds *Dataset) (*Summary, error) {
	if len(ds.Memory) > 0 && r.memory == nil {
		return nil, errors.New("memory cases need a memory coordinator")
	}

	out, path, closeOut, err := r.openOutput()
	if err != nil {
		return nil, err
	}
	defer closeOut()

	summary := newSummary(path)
	enc := json.NewEncoder(out)
	record := func(res CaseResult) error {
		summary.add(res)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("writing result %s/%s: %w", res.Suite, res.ID, err)
		}
		return nil
	}

	for _, c := range ds.RAG {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := record(r.runRAG(ctx, c)); err != nil {
			return summary, err
		}
	}
	for _, c := range ds.Memory {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := record(r.runMemory(ctx, c)); err != nil {
			return summary, err
		}
	}
	for _, c := range ds.Facts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := record(r.runFacts(ctx, c)); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (r *Runner) openOutput() (io.Writer, string, func(), error) {
	if r.opts.OutputDir == "" {
		return io.Discard, "", func() {}, nil
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0o750); err != nil {
		return nil, "", nil, fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(r.opts.OutputDir, "run_"+r.now().UTC().Format("20060102_150405")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, "", nil, fmt.Errorf("creating run file: %w", err)
	}
	return f, path, func() {
		if err := f.Close(); err != nil {
			r.logger.Warn("closing run file failed", zap.String("path", path), zap.Error(err))
		}
	}, nil
}

func autoApprove() *bool {
	t := true
	return &t
}

func (r *Runner) base(suite, id, query string) CaseResult {
	return CaseResult{Suite: suite, ID: id, Query: query, Timestamp: r.now()}
}

func (r *Runner) runRAG(ctx context.Context, c RAGCase) CaseResult {
	res := r.base(SuiteRAG, c.ID, c.Query)
	start := time.Now()
	out, err := r.engine.Run(ctx, c.Query, workflow.RunOptions{SkipMemory: true, AutoApprove: autoApprove()})
	res.LatencySeconds = time.Since(start).Seconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	fillRun(&res, out)
	res.Passed = meetsQuality(out.CitationQuality, c.ExpectedQualityMin)
	r.logger.Info("rag case finished",
		zap.String("id", c.ID),
		zap.String("citation_quality", string(out.CitationQuality)),
		zap.Bool("passed", res.Passed))
	return res
}

func (r *Runner) runMemory(ctx context.Context, c MemoryCase) CaseResult {
	res := r.base(SuiteMemory, c.ID, c.Query)
	res.FactType = c.FactType
	res.ExpectedFacts = c.ExpectedFacts

	ctx = logging.WithSessionID(ctx, "eval-"+c.ID)
	if r.opts.IsolateMemory {
		if _, err := r.memory.Clear(ctx); err != nil && !errors.Is(err, memory.ErrBackendUnavailable) {
			res.Error = fmt.Sprintf("clearing memory: %v", err)
			return res
		}
	}

	for _, msg := range c.Setup {
		if _, err := r.engine.Run(ctx, msg, workflow.RunOptions{AutoApprove: autoApprove()}); err != nil {
			res.Error = fmt.Sprintf("setup %q: %v", msg, err)
			return res
		}
	}

	// Recall must come from long-term memory, not the session buffer.
	st := r.memory.ShortTerm(ctx)
	st.Clear()
	st.SetDisabled(true)
	defer st.SetDisabled(false)

	start := time.Now()
	out, err := r.engine.Run(ctx, c.Query, workflow.RunOptions{AutoApprove: autoApprove()})
	res.LatencySeconds = time.Since(start).Seconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	fillRun(&res, out)

	score := RecallCoverage(c.ExpectedFacts, out.Response)
	res.MemoryScore = &score
	res.Passed = score == 1
	r.logger.Info("memory case finished", zap.String("id", c.ID), zap.Float64("score", score))
	return res
}

func (r *Runner) runFacts(ctx context.Context, c FactCase) CaseResult {
	res := r.base(SuiteFacts, c.ID, c.Message)
	res.ExpectedFacts = c.ExpectedFacts

	start := time.Now()
	out, err := r.engine.Run(ctx, c.Message, workflow.RunOptions{SkipMemory: true, AutoApprove: autoApprove()})
	res.LatencySeconds = time.Since(start).Seconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	fillRun(&res, out)

	scores := FactScores(c.ExpectedFacts, out.ExtractedFacts)
	res.Extraction = &scores
	res.ExtractedFacts = out.ExtractedFacts
	res.Passed = scores.F1 == 1
	r.logger.Info("facts case finished", zap.String("id", c.ID), zap.Float64("f1", scores.F1))
	return res
}

func fillRun(res *CaseResult, out *workflow.Result) {
	res.QueryType = string(out.QueryType)
	res.CitationQuality = string(out.CitationQuality)
	res.CitationCount = strings.Count(out.Answer, citationMarker)
	res.LoopCount = out.LoopCount
	res.ResponseLength = len(out.Response)
}
