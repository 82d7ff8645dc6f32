// Package eval runs YAML-defined evaluation suites against the workflow
// engine and scores the answers deterministically.
//
// A dataset has three suites: rag cases grade citation quality, memory
// cases check that facts stored in earlier runs come back in a later
// answer, and facts cases score profile fact extraction.
package eval

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/validation"
)

// Suite names.
const (
	SuiteRAG    = "rag"
	SuiteMemory = "memory"
	SuiteFacts  = "facts"
)

// Dataset is a set of evaluation suites.
type Dataset struct {
	RAG    []RAGCase    `yaml:"rag"`
	Memory []MemoryCase `yaml:"memory"`
	Facts  []FactCase   `yaml:"facts"`
}

// RAGCase asks a document question and expects at least a citation tier.
type RAGCase struct {
	ID                 string `yaml:"id"`
	Query              string `yaml:"query"`
	ExpectedQualityMin string `yaml:"expected_quality_min,omitempty"`
}

// MemoryCase stores setup turns, then asks a question whose answer should
// repeat the expected facts.
type MemoryCase struct {
	ID            string   `yaml:"id"`
	FactType      string   `yaml:"fact_type,omitempty"`
	Setup         []string `yaml:"setup"`
	Query         string   `yaml:"query"`
	ExpectedFacts []string `yaml:"expected_facts"`
}

// FactCase sends one message and compares the extracted facts.
type FactCase struct {
	ID            string         `yaml:"id"`
	Message       string         `yaml:"message"`
	ExpectedFacts []ExpectedFact `yaml:"expected_facts"`
}

// ExpectedFact is a profile fact a message should yield.
type ExpectedFact struct {
	Category string `yaml:"category" json:"category"`
	Field    string `yaml:"field" json:"field"`
	Value    string `yaml:"value" json:"value"`
}

// LoadDataset reads and validates a YAML dataset.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes a YAML dataset, fills missing case ids and
// validates every case.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset YAML: %w", err)
	}
	if err := ds.normalize(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Len returns the total number of cases.
func (d *Dataset) Len() int {
	return len(d.RAG) + len(d.Memory) + len(d.Facts)
}

func (d *Dataset) normalize() error {
	seen := map[string]bool{}
	check := func(suite string, i int, id *string, text string) error {
		if *id == "" {
			*id = fmt.Sprintf("%s-%d", suite, i+1)
		}
		if err := logging.ValidateID(*id); err != nil {
			return fmt.Errorf("%s case %d: invalid id %q: %w", suite, i+1, *id, err)
		}
		if seen[*id] {
			return fmt.Errorf("%s case %d: duplicate id %q", suite, i+1, *id)
		}
		seen[*id] = true
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%s case %q: query is empty", suite, *id)
		}
		return nil
	}

	for i := range d.RAG {
		c := &d.RAG[i]
		if err := check(SuiteRAG, i, &c.ID, c.Query); err != nil {
			return err
		}
		if c.ExpectedQualityMin != "" && validation.ParseTier(c.ExpectedQualityMin) == validation.TierUnknown {
			return fmt.Errorf("rag case %q: unknown expected_quality_min %q", c.ID, c.ExpectedQualityMin)
		}
	}
	for i := range d.Memory {
		c := &d.Memory[i]
		if err := check(SuiteMemory, i, &c.ID, c.Query); err != nil {
			return err
		}
		if len(c.Setup) == 0 {
			return fmt.Errorf("memory case %q: setup is empty", c.ID)
		}
	}
	for i := range d.Facts {
		c := &d.Facts[i]
		if err := check(SuiteFacts, i, &c.ID, c.Message); err != nil {
			return err
		}
	}
	return nil
}
