package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChromem(t *testing.T) *Chromem {
	t.Helper()
	s, err := NewChromem(ChromemConfig{Path: t.TempDir()}, NewTestEmbedder(), nil)
	require.NoError(t, err)
	return s
}

func TestNewChromem_RequiresEmbedder(t *testing.T) {
	_, err := NewChromem(ChromemConfig{Path: t.TempDir()}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromem_AddSearchListCount(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)

	ids, err := s.Add(ctx, "docs", []Document{
		{ID: "gdpr", Content: "GDPR data subject access requests", Metadata: map[string]string{"source": "gdpr.md"}},
		{ID: "pci", Content: "PCI DSS cardholder data environment"},
		{Content: "HIPAA privacy rule for health data"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, "gdpr", ids[0])
	assert.NotEmpty(t, ids[2])

	n, err := s.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := s.Search(ctx, "docs", "GDPR access requests", 10)
	require.NoError(t, err)
	require.Len(t, res, 3, "k is capped at collection size")
	assert.Equal(t, "gdpr", res[0].ID)
	assert.Equal(t, "gdpr.md", res[0].Metadata["source"])
	assert.NotEmpty(t, res[0].Embedding)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	all, err := s.List(ctx, "docs")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestChromem_MissingCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)

	res, err := s.Search(ctx, "nothing_here", "query", 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	n, err := s.Count(ctx, "nothing_here")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, s.DeleteCollection(ctx, "nothing_here"))
}

func TestChromem_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)
	_, err := s.Add(ctx, "memories", []Document{{Content: "one"}, {Content: "two"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCollection(ctx, "memories"))
	n, err := s.Count(ctx, "memories")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChromem_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)

	_, err := s.Add(ctx, "docs", nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)

	_, err = s.Add(ctx, "Bad-Name", []Document{{Content: "x"}})
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	_, err = s.Search(ctx, "docs", "q", 0)
	assert.Error(t, err)
}

func TestChromem_EmbeddingFailure(t *testing.T) {
	emb := NewTestEmbedder()
	emb.Err = errors.New("model offline")
	s, err := NewChromem(ChromemConfig{Path: t.TempDir()}, emb, nil)
	require.NoError(t, err)

	_, err = s.Add(context.Background(), "docs", []Document{{Content: "x"}})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestChromem_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewChromem(ChromemConfig{Path: dir}, NewTestEmbedder(), nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "docs", []Document{{ID: "a", Content: "SOC 2 trust services criteria"}})
	require.NoError(t, err)

	reopened, err := NewChromem(ChromemConfig{Path: dir}, NewTestEmbedder(), nil)
	require.NoError(t, err)
	n, err := reopened.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("compliance_docs"))
	assert.ErrorIs(t, ValidateCollectionName(""), ErrInvalidCollectionName)
	assert.ErrorIs(t, ValidateCollectionName("../etc"), ErrInvalidCollectionName)
}

func TestQdrantConfig_Defaults(t *testing.T) {
	var c QdrantConfig
	c.ApplyDefaults()
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, 6334, c.Port)
	assert.EqualValues(t, 384, c.VectorSize)
	assert.NoError(t, c.Validate())

	c.Port = 70000
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}
