package eval

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// SuiteSummary aggregates one suite.
type SuiteSummary struct {
	Cases          int     `json:"cases"`
	Errors         int     `json:"errors"`
	Passed         int     `json:"passed"`
	AvgLatency     float64 `json:"avg_latency_seconds"`
	AvgCitations   float64 `json:"avg_citations,omitempty"`
	AvgLoops       float64 `json:"avg_loops,omitempty"`
	AvgMemoryScore float64 `json:"avg_memory_score,omitempty"`
	AvgPrecision   float64 `json:"avg_precision,omitempty"`
	AvgRecall      float64 `json:"avg_recall,omitempty"`
	AvgF1          float64 `json:"avg_f1,omitempty"`

	// ByFactType averages memory scores per fact type.
	ByFactType map[string]float64 `json:"by_fact_type,omitempty"`

	byType map[string][]float64
}

// Summary aggregates a run.
type Summary struct {
	Path   string                   `json:"path,omitempty"`
	Suites map[string]*SuiteSummary `json:"suites"`
}

func newSummary(path string) *Summary {
	return &Summary{
		Path: path,
		Suites: map[string]*SuiteSummary{
			SuiteRAG:    {},
			SuiteMemory: {},
			SuiteFacts:  {},
		},
	}
}

// add folds res into the running averages. Errored cases count only
// toward Cases and Errors.
func (s *Summary) add(res CaseResult) {
	ss := s.Suites[res.Suite]
	ss.Cases++
	if res.Error != "" {
		ss.Errors++
		return
	}
	if res.Passed {
		ss.Passed++
	}

	n := float64(ss.Cases - ss.Errors)
	avg := func(cur, v float64) float64 { return cur + (v-cur)/n }

	ss.AvgLatency = avg(ss.AvgLatency, res.LatencySeconds)
	ss.AvgCitations = avg(ss.AvgCitations, float64(res.CitationCount))
	ss.AvgLoops = avg(ss.AvgLoops, float64(res.LoopCount))
	if res.MemoryScore != nil {
		ss.AvgMemoryScore = avg(ss.AvgMemoryScore, *res.MemoryScore)
		if ss.byType == nil {
			ss.byType = map[string][]float64{}
			ss.ByFactType = map[string]float64{}
		}
		ft := res.FactType
		if ft == "" {
			ft = "unknown"
		}
		ss.byType[ft] = append(ss.byType[ft], *res.MemoryScore)
		ss.ByFactType[ft] = mean(ss.byType[ft])
	}
	if res.Extraction != nil {
		ss.AvgPrecision = avg(ss.AvgPrecision, res.Extraction.Precision)
		ss.AvgRecall = avg(ss.AvgRecall, res.Extraction.Recall)
		ss.AvgF1 = avg(ss.AvgF1, res.Extraction.F1)
	}
}

// Total returns the case and error counts across suites.
func (s *Summary) Total() (cases, errs int) {
	for _, ss := range s.Suites {
		cases += ss.Cases
		errs += ss.Errors
	}
	return cases, errs
}

// Print writes a human-readable report.
func (s *Summary) Print(w io.Writer) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\nEVALUATION SUMMARY\n%s\n", rule, rule)

	if rag := s.Suites[SuiteRAG]; rag.Cases > rag.Errors {
		fmt.Fprintf(w, "\n  RAG QUALITY (n=%d)\n", rag.Cases-rag.Errors)
		fmt.Fprintf(w, "    Met quality floor:  %d\n", rag.Passed)
		fmt.Fprintf(w, "    Average Citations:  %.1f\n", rag.AvgCitations)
		fmt.Fprintf(w, "    Average Loops:      %.2f\n", rag.AvgLoops)
		fmt.Fprintf(w, "    Average Latency:    %.2fs\n", rag.AvgLatency)
	}

	if mem := s.Suites[SuiteMemory]; mem.Cases > mem.Errors {
		fmt.Fprintf(w, "\n  MEMORY RECALL (n=%d)\n", mem.Cases-mem.Errors)
		fmt.Fprintf(w, "    Average Coverage:   %.3f\n", mem.AvgMemoryScore)
		fmt.Fprintf(w, "    Average Latency:    %.2fs\n", mem.AvgLatency)
		if len(mem.ByFactType) > 0 {
			fmt.Fprintln(w, "\n    By Fact Type:")
			types := make([]string, 0, len(mem.ByFactType))
			for ft := range mem.ByFactType {
				types = append(types, ft)
			}
			sort.Strings(types)
			for _, ft := range types {
				fmt.Fprintf(w, "      %s: %.3f (n=%d)\n", ft, mem.ByFactType[ft], len(mem.byType[ft]))
			}
		}
	}

	if facts := s.Suites[SuiteFacts]; facts.Cases > facts.Errors {
		fmt.Fprintf(w, "\n  FACT EXTRACTION (n=%d)\n", facts.Cases-facts.Errors)
		fmt.Fprintf(w, "    Precision:          %.3f\n", facts.AvgPrecision)
		fmt.Fprintf(w, "    Recall:             %.3f\n", facts.AvgRecall)
		fmt.Fprintf(w, "    F1:                 %.3f\n", facts.AvgF1)
		fmt.Fprintf(w, "    Average Latency:    %.2fs\n", facts.AvgLatency)
	}

	cases, errs := s.Total()
	fmt.Fprintf(w, "\n  OVERALL\n")
	fmt.Fprintf(w, "    Total:              %d\n", cases)
	fmt.Fprintf(w, "    Successful:         %d\n", cases-errs)
	fmt.Fprintf(w, "    Errors:             %d\n", errs)
	if s.Path != "" {
		fmt.Fprintf(w, "\nResults saved to: %s\n", s.Path)
	}
	fmt.Fprintln(w, rule)
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
