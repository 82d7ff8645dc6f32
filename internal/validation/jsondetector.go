package validation

import (
	"strings"

	"github.com/fyrsmithlabs/complyd/internal/config"
)

// JSONDetector flags answers that came back as raw JSON instead of prose.
type JSONDetector struct {
	Enabled  bool
	Prefixes []string
	Markers  []string
}

// DefaultJSONDetector matches a leading "{" or a "title" key anywhere.
func DefaultJSONDetector() JSONDetector {
	return JSONDetector{
		Enabled:  true,
		Prefixes: []string{"{"},
		Markers:  []string{`"title":`},
	}
}

// NewJSONDetector builds a detector from config.
func NewJSONDetector(cfg config.JSONDetectorConfig) JSONDetector {
	return JSONDetector{
		Enabled:  cfg.Enabled,
		Prefixes: cfg.Prefixes,
		Markers:  cfg.Markers,
	}
}

// Detect reports whether answer looks like JSON output.
func (d JSONDetector) Detect(answer string) bool {
	if !d.Enabled {
		return false
	}
	trimmed := strings.TrimSpace(answer)
	for _, p := range d.Prefixes {
		if p != "" && strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	for _, m := range d.Markers {
		if m != "" && strings.Contains(answer, m) {
			return true
		}
	}
	return false
}
