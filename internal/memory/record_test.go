package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecency(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   string
		want float64
	}{
		{"today", now.Add(-time.Hour).Format(time.RFC3339), 1},
		{"fifteen days", now.AddDate(0, 0, -15).Format(time.RFC3339), 0.5},
		{"thirty days", now.AddDate(0, 0, -30).Format(time.RFC3339), 0},
		{"ancient", now.AddDate(-1, 0, 0).Format(time.RFC3339), 0},
		{"nanos", now.AddDate(0, 0, -3).Format(time.RFC3339Nano), 0.9},
		{"garbage", "last tuesday", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Recency(tt.ts, now), 1e-9)
		})
	}
}

func TestImportance(t *testing.T) {
	assert.Equal(t, 1.0, Importance(map[string]string{MetaCitationQuality: "Excellent"}))
	assert.Equal(t, 0.8, Importance(map[string]string{MetaCitationQuality: "Good"}))
	assert.Equal(t, 0.6, Importance(map[string]string{MetaCitationQuality: "Fair"}))
	assert.Equal(t, 0.4, Importance(map[string]string{MetaCitationQuality: "Poor"}))
	assert.Equal(t, 0.5, Importance(map[string]string{MetaCitationQuality: "Unknown"}))
	assert.Equal(t, 0.8, Importance(nil), "missing quality counts as Good")
}

func TestHybridScore_Bounds(t *testing.T) {
	for _, rel := range []float64{0, 0.25, 0.5, 1} {
		for _, rec := range []float64{0, 0.5, 1} {
			for _, imp := range []float64{0.4, 0.5, 0.6, 0.8, 1} {
				h := HybridScore(rel, rec, imp)
				assert.GreaterOrEqual(t, h, 0.0)
				assert.LessOrEqual(t, h, 1.0)
			}
		}
	}
	assert.InDelta(t, 1.0, HybridScore(1, 1, 1), 1e-9)
	assert.InDelta(t, 0.5*0.9+0.3*0.5+0.2*0.6, HybridScore(0.9, 0.5, 0.6), 1e-9)
}

func TestMemoryText(t *testing.T) {
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'é'
	}
	got := memoryText("Who am I?", string(long))
	assert.Equal(t, "User: Who am I? | Agent: "+string(long[:100]), got)
}
