package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

func newTestMetrics(t *testing.T) (*Metrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := &Metrics{
		meter:  mp.Meter(instrumentationName),
		logger: zap.NewNop(),
	}
	m.init()
	return m, reader
}

func collectSums(t *testing.T, reader *metric.ManualReader) (map[string]int64, map[string]bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			seen[m.Name] = true
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums, seen
}

func TestMetrics_RecordInvocation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInvocation(ctx, "ask", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "ask", 50*time.Millisecond, errors.New("invalid k"))

	sums, seen := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["complyd.mcp.tool.invocations_total"])
	assert.Equal(t, int64(1), sums["complyd.mcp.tool.errors_total"])
	assert.True(t, seen["complyd.mcp.tool.duration_seconds"])
}

func TestMetrics_ActiveRequests(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.IncrementActive(ctx, "memory_search")
	m.IncrementActive(ctx, "memory_search")
	m.DecrementActive(ctx, "memory_search")

	sums, _ := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["complyd.mcp.tool.active_requests"])
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"short query", workflow.ErrQueryTooShort, "validation_error"},
		{"wrapped short query", fmt.Errorf("ask: %w", workflow.ErrQueryTooShort), "validation_error"},
		{"invalid input", errors.New("invalid session_id"), "validation_error"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), "canceled"},
		{"timeout text", errors.New("operation timeout"), "timeout"},
		{"retrieval", errors.New("retrieve documents: connection refused"), "storage_error"},
		{"embedding", errors.New("embedding generation failed"), "storage_error"},
		{"generator", errors.New("generator unavailable"), "generator_error"},
		{"generic", errors.New("something went wrong"), "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
