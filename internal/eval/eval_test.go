package eval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/validation"
	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

type runCall struct {
	query string
	opts  workflow.RunOptions
	// shortTermDisabled is sampled during the call.
	shortTermDisabled bool
}

// fakeEngine answers from a table keyed by query.
type fakeEngine struct {
	mu      sync.Mutex
	results map[string]*workflow.Result
	errs    map[string]error
	coord   *memory.Coordinator
	calls   []runCall
}

func (f *fakeEngine) Run(ctx context.Context, query string, opts workflow.RunOptions) (*workflow.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := runCall{query: query, opts: opts}
	if f.coord != nil {
		c.shortTermDisabled = f.coord.ShortTerm(ctx).Disabled()
	}
	f.calls = append(f.calls, c)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	if res, ok := f.results[query]; ok {
		return res, nil
	}
	return &workflow.Result{CitationQuality: validation.TierGood}, nil
}

func newTestCoordinator(t *testing.T) *memory.Coordinator {
	t.Helper()
	store, err := vectorstore.NewChromem(vectorstore.ChromemConfig{Path: t.TempDir()}, vectorstore.NewTestEmbedder(), nil)
	require.NoError(t, err)
	backend, err := memory.NewLocalBackend(store, "conversations", nil)
	require.NoError(t, err)
	prof, err := profile.NewStore(filepath.Join(t.TempDir(), "user_profile.json"), zap.NewNop())
	require.NoError(t, err)
	return memory.NewCoordinator(backend, memory.NewSessions(10, time.Hour), prof, zap.NewNop())
}

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset(filepath.Join("testdata", "dataset.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, "soc2-mfa", ds.RAG[0].ID)
	assert.Equal(t, "rag-2", ds.RAG[1].ID)
	assert.Equal(t, []string{"CISO", "Acme Health"}, ds.Memory[0].ExpectedFacts)
	assert.Equal(t, ExpectedFact{Category: "personal_info", Field: "industry", Value: "healthcare"}, ds.Facts[0].ExpectedFacts[1])
	assert.Empty(t, ds.Facts[1].ExpectedFacts)

	_, err = LoadDataset(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestParseDataset_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "rag: [", "failed to parse dataset YAML"},
		{"empty query", "rag:\n  - id: a\n    query: ' '\n", "query is empty"},
		{"unknown tier", "rag:\n  - query: What is SOC 2?\n    expected_quality_min: great\n", "unknown expected_quality_min"},
		{"duplicate id", "rag:\n  - id: a\n    query: q1\nfacts:\n  - id: a\n    message: m1\n", "duplicate id"},
		{"bad id", "rag:\n  - id: ../x\n    query: q1\n", "invalid id"},
		{"no setup", "memory:\n  - query: What is my role?\n", "setup is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRecallCoverage(t *testing.T) {
	assert.Equal(t, 1.0, RecallCoverage(nil, "anything"))
	assert.Equal(t, 1.0, RecallCoverage([]string{"CISO", "acme health"}, "You are the ciso at Acme Health."))
	assert.Equal(t, 0.5, RecallCoverage([]string{"CISO", "Globex"}, "You are the CISO."))
	assert.Equal(t, 0.0, RecallCoverage([]string{"CISO"}, ""))
}

func TestFactScores(t *testing.T) {
	role := ExpectedFact{Category: "personal_info", Field: "role", Value: "Security Engineer"}
	industry := ExpectedFact{Category: "personal_info", Field: "industry", Value: "healthcare"}
	gotRole := profile.Fact{Category: "Personal_Info", Field: "ROLE", Value: " security engineer "}
	gotCompany := profile.Fact{Category: "personal_info", Field: "company", Value: "Acme"}

	tests := []struct {
		name      string
		expected  []ExpectedFact
		extracted []profile.Fact
		want      Scores
	}{
		{"both empty", nil, nil, Scores{1, 1, 1}},
		{"exact", []ExpectedFact{role}, []profile.Fact{gotRole}, Scores{1, 1, 1}},
		{"missed all", []ExpectedFact{role}, nil, Scores{0, 0, 0}},
		{"spurious", nil, []profile.Fact{gotCompany}, Scores{0, 1, 0}},
		{"half", []ExpectedFact{role, industry}, []profile.Fact{gotRole, gotCompany}, Scores{0.5, 0.5, 0.5}},
		{"duplicate extraction matches once", []ExpectedFact{role}, []profile.Fact{gotRole, gotRole}, Scores{0.5, 1, 2.0 / 3.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FactScores(tt.expected, tt.extracted)
			assert.InDelta(t, tt.want.Precision, got.Precision, 1e-9)
			assert.InDelta(t, tt.want.Recall, got.Recall, 1e-9)
			assert.InDelta(t, tt.want.F1, got.F1, 1e-9)
		})
	}
}

func TestMeetsQuality(t *testing.T) {
	assert.True(t, meetsQuality(validation.TierPoor, ""))
	assert.True(t, meetsQuality(validation.TierExcellent, "good"))
	assert.True(t, meetsQuality(validation.TierGood, "Good"))
	assert.False(t, meetsQuality(validation.TierFair, "good"))
	assert.False(t, meetsQuality(validation.TierUnknown, "poor"))
}

func TestRunner(t *testing.T) {
	ds, err := LoadDataset(filepath.Join("testdata", "dataset.yaml"))
	require.NoError(t, err)

	coord := newTestCoordinator(t)
	_, err = coord.Remember(context.Background(), "stale question", "stale answer", nil)
	require.NoError(t, err)

	engine := &fakeEngine{
		coord: coord,
		results: map[string]*workflow.Result{
			"Does SOC 2 require multi-factor authentication?": {
				Answer:          "Yes [Source: soc2.pdf] [Source: soc2.pdf]",
				Response:        "formatted",
				CitationQuality: validation.TierGood,
				LoopCount:       1,
			},
			"What is my role?": {
				Response:        "You are the CISO at Acme Health.",
				CitationQuality: validation.TierGood,
			},
			"I work as a security engineer in healthcare.": {
				CitationQuality: validation.TierGood,
				ExtractedFacts: []profile.Fact{
					{Category: "personal_info", Field: "role", Value: "security engineer", Confidence: 0.9},
				},
			},
		},
		errs: map[string]error{
			"Compare PCI DSS and HIPAA logging requirements": errors.New("generator down"),
		},
	}

	dir := t.TempDir()
	r, err := NewRunner(engine, coord, Options{OutputDir: dir, IsolateMemory: true})
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	summary, err := r.Run(context.Background(), ds)
	require.NoError(t, err)

	// rag, rag, memory setup, memory query, facts, facts
	require.Len(t, engine.calls, 6)
	assert.True(t, engine.calls[0].opts.SkipMemory)
	require.NotNil(t, engine.calls[0].opts.AutoApprove)
	assert.True(t, *engine.calls[0].opts.AutoApprove)
	assert.False(t, engine.calls[2].opts.SkipMemory)
	assert.False(t, engine.calls[2].shortTermDisabled)
	assert.True(t, engine.calls[3].shortTermDisabled)
	assert.True(t, engine.calls[4].opts.SkipMemory)

	assert.Equal(t, 0, coord.Stats(context.Background()).LongTermCount, "memory case clears long-term memory")

	rag := summary.Suites[SuiteRAG]
	assert.Equal(t, 2, rag.Cases)
	assert.Equal(t, 1, rag.Errors)
	assert.Equal(t, 1, rag.Passed)
	assert.Equal(t, 2.0, rag.AvgCitations)

	mem := summary.Suites[SuiteMemory]
	assert.Equal(t, 1.0, mem.AvgMemoryScore)
	assert.Equal(t, 1.0, mem.ByFactType["personal_info"])

	facts := summary.Suites[SuiteFacts]
	assert.Equal(t, 2, facts.Cases)
	assert.InDelta(t, (2.0/3.0+1.0)/2, facts.AvgF1, 1e-9)
	assert.InDelta(t, 0.75, facts.AvgRecall, 1e-9)

	cases, errs := summary.Total()
	assert.Equal(t, 5, cases)
	assert.Equal(t, 1, errs)

	path := filepath.Join(dir, "run_20260301_120000.jsonl")
	assert.Equal(t, path, summary.Path)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []CaseResult
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var res CaseResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &res))
		lines = append(lines, res)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 5)
	assert.Equal(t, "generator down", lines[1].Error)
	assert.Equal(t, SuiteMemory, lines[2].Suite)
	require.NotNil(t, lines[2].MemoryScore)
	assert.Equal(t, 1.0, *lines[2].MemoryScore)

	var buf bytes.Buffer
	summary.Print(&buf)
	assert.Contains(t, buf.String(), "EVALUATION SUMMARY")
	assert.Contains(t, buf.String(), "personal_info: 1.000 (n=1)")
	assert.Contains(t, buf.String(), "Errors:             1")
}

func TestRunner_RequiresCoordinatorForMemoryCases(t *testing.T) {
	r, err := NewRunner(&fakeEngine{}, nil, Options{})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), &Dataset{Memory: []MemoryCase{{ID: "m", Setup: []string{"x"}, Query: "q"}}})
	assert.ErrorContains(t, err, "memory coordinator")

	_, err = NewRunner(nil, nil, Options{})
	assert.Error(t, err)
}

func TestRunner_CanceledContext(t *testing.T) {
	engine := &fakeEngine{}
	r, err := NewRunner(engine, nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, &Dataset{RAG: []RAGCase{{ID: "a", Query: "What is SOC 2?"}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.calls)
}
