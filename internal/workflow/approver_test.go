package workflow

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complyd/internal/validation"
)

func TestStdinApprover(t *testing.T) {
	tests := []struct {
		input    string
		approved bool
		feedback string
	}{
		{"yes\n", true, "Approved"},
		{"Y\n", true, "Approved"},
		{"  APPROVE  \n", true, "Approved"},
		{"no\n", false, "no"},
		{"Needs More Sources\n", false, "needs more sources"},
		{"\n", false, "Rejected"},
		{"", false, "Rejected"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			a := NewStdinApprover(strings.NewReader(tt.input), &out)

			got, err := a.Approve(context.Background(), Review{Response: "the answer", CitationQuality: validation.TierGood, QueryType: QueryDefinition})
			require.NoError(t, err)
			assert.Equal(t, tt.approved, got.Approved)
			assert.Equal(t, tt.feedback, got.Feedback)
			assert.Contains(t, out.String(), "the answer")
			assert.Contains(t, out.String(), "Citation Quality: Good")
		})
	}
}

func TestStdinApprover_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStdinApprover(strings.NewReader("yes\n"), &bytes.Buffer{}).Approve(ctx, Review{})
	assert.ErrorIs(t, err, context.Canceled)
}
