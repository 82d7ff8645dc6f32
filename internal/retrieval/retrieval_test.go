package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complyd/internal/index"
)

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Search(ctx context.Context, query string, k, fetchK int, lambda float64) ([]index.Hit, error) {
	args := m.Called(ctx, query, k, fetchK, lambda)
	hits, _ := args.Get(0).([]index.Hit)
	return hits, args.Error(1)
}

func (m *mockIndex) SearchSimple(ctx context.Context, query string, k int) ([]index.Hit, error) {
	args := m.Called(ctx, query, k)
	hits, _ := args.Get(0).([]index.Hit)
	return hits, args.Error(1)
}

func hits(scores ...float64) []index.Hit {
	out := make([]index.Hit, len(scores))
	for i, s := range scores {
		out[i] = index.Hit{Content: "chunk", Source: "docs/soc2.pdf", Locator: "4", Score: s}
	}
	return out
}

func TestRetrieve_FloorAndRanks(t *testing.T) {
	idx := &mockIndex{}
	idx.On("Search", mock.Anything, "access reviews", 12, 40, 0.6).Return(hits(0.9, 0.2, 0.5, 0.3), nil)

	chunks, scores, err := NewRanker(idx, DefaultOptions(), nil).Retrieve(context.Background(), "access reviews", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []float64{0.9, 0.5, 0.3}, scores)
	assert.Equal(t, []int{1, 3, 4}, []int{chunks[0].Rank, chunks[1].Rank, chunks[2].Rank})
	assert.Len(t, scores, len(chunks))
	idx.AssertNotCalled(t, "SearchSimple", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetrieve_FallsBackToSimilarity(t *testing.T) {
	idx := &mockIndex{}
	idx.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("no embeddings"))
	idx.On("SearchSimple", mock.Anything, "q1", 5).Return(hits(0.7), nil)

	chunks, scores, err := NewRanker(idx, Options{K: 5}, nil).Retrieve(context.Background(), "q1", nil)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Equal(t, []float64{0.7}, scores)
	idx.AssertExpectations(t)
}

func TestRetrieve_BothFail(t *testing.T) {
	idx := &mockIndex{}
	idx.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("mmr down"))
	idx.On("SearchSimple", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("index down"))

	chunks, scores, err := NewRanker(idx, Options{}, nil).Retrieve(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index down")
	assert.Empty(t, chunks)
	assert.Empty(t, scores)
}

func TestRetrieve_UsesEnhancedQuery(t *testing.T) {
	idx := &mockIndex{}
	idx.On("Search", mock.Anything, "MFA policy claim one claim two", 12, 40, 0.6).Return(hits(0.8), nil)

	_, _, err := NewRanker(idx, Options{}, nil).Retrieve(context.Background(), "MFA policy",
		&Enhancement{Notes: "ignored", Claims: []string{"claim one", "claim two", "claim three"}})
	require.NoError(t, err)
	idx.AssertExpectations(t)
}

func TestEnhanceQuery(t *testing.T) {
	assert.Equal(t, "q", EnhanceQuery("q", nil))
	assert.Equal(t, "q a", EnhanceQuery("q", &Enhancement{Claims: []string{"a"}}))
	assert.Equal(t, "q a b", EnhanceQuery("q", &Enhancement{Claims: []string{"a", "b", "c"}}))
	assert.Equal(t, "q missing audit scope", EnhanceQuery("q", &Enhancement{Notes: "missing audit scope"}))
}

func TestNewRanker_Defaults(t *testing.T) {
	r := NewRanker(&mockIndex{}, Options{Lambda: 2, Floor: -1}, nil)
	assert.Equal(t, DefaultOptions(), r.Options())

	r = NewRanker(&mockIndex{}, Options{K: 3, FetchK: 9, Lambda: 0.5, Floor: 0}, nil)
	assert.Equal(t, Options{K: 3, FetchK: 9, Lambda: 0.5, Floor: 0}, r.Options())
}
