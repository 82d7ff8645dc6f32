package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

// Scrubber redacts credentials from conversation text using the gitleaks
// default rule set.
type Scrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// NewScrubber loads the default gitleaks configuration.
func NewScrubber(logger *zap.Logger) (*Scrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scrubber{detector: d, logger: logger}, nil
}

// Redact implements Redactor. Each secret becomes [REDACTED:<rule-id>].
func (s *Scrubber) Redact(text string) string {
	if text == "" {
		return text
	}

	s.mu.Lock()
	findings := s.detector.DetectString(text)
	s.mu.Unlock()

	if len(findings) == 0 {
		return text
	}

	// longest first so a secret containing another is replaced whole
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})

	redacted := text
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		redacted = strings.ReplaceAll(redacted, f.Secret, "[REDACTED:"+f.RuleID+"]")
		SecretsRedacted.WithLabelValues(f.RuleID).Inc()
	}

	s.logger.Info("redacted secrets before storage", zap.Int("count", len(findings)))
	return redacted
}
