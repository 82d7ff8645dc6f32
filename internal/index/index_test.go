package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	store, err := vectorstore.NewChromem(vectorstore.ChromemConfig{Path: t.TempDir()}, vectorstore.NewTestEmbedder(), nil)
	require.NoError(t, err)
	return New(store, "", nil)
}

func TestMMR_PrefersDiverseCandidates(t *testing.T) {
	candidates := []vectorstore.Result{
		{ID: "a", Score: 0.95, Embedding: []float32{1, 0, 0}},
		{ID: "a-dup", Score: 0.94, Embedding: []float32{1, 0, 0}},
		{ID: "b", Score: 0.80, Embedding: []float32{0, 1, 0}},
	}

	got, err := mmr(candidates, 2, 0.6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID, "near-duplicate should lose to a diverse candidate")

	got, err = mmr(candidates, 2, 1.0)
	require.NoError(t, err)
	assert.Equal(t, "a-dup", got[1].ID, "lambda 1 is pure relevance")
}

func TestMMR_Edges(t *testing.T) {
	got, err := mmr(nil, 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = mmr([]vectorstore.Result{{ID: "x", Score: 0.5, Embedding: []float32{1}}}, 5, 0.5)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = mmr([]vectorstore.Result{{ID: "x", Score: 0.5}}, 1, 0.5)
	assert.ErrorIs(t, err, ErrNoEmbeddings)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 2}))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	src := t.TempDir()

	soc2 := strings.Repeat("SOC 2 access control requires quarterly user access reviews. ", 10)
	hipaa := strings.Repeat("HIPAA requires encryption of protected health information at rest. ", 10)
	writeFile(t, src, "soc2.md", soc2)
	writeFile(t, src, "hipaa.txt", hipaa)
	writeFile(t, src, "notes.pdf", "binary")

	in := NewIngester(idx, IngestConfig{ChunkSize: 200, Overlap: 20}, nil)
	stats, err := in.IngestDir(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Greater(t, stats.Chunks, 2)
	assert.Empty(t, stats.Failed)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, count)

	hits, err := idx.SearchSimple(ctx, "access reviews", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "soc2.md", filepath.Base(hits[0].Source))
	assert.NotEqual(t, "N/A", hits[0].Locator)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}

	mmrHits, err := idx.Search(ctx, "access reviews encryption", 4, 10, 0.6)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(mmrHits), 4)
	sources := map[string]bool{}
	for _, h := range mmrHits {
		sources[filepath.Base(h.Source)] = true
	}
	assert.Len(t, sources, 2, "mmr should mix both documents")
}

func TestIngestFile_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	path := writeFile(t, t.TempDir(), "iso.txt", strings.Repeat("ISO 27001 Annex A controls. ", 30))

	in := NewIngester(idx, IngestConfig{ChunkSize: 150, Overlap: 10}, nil)
	first, err := in.IngestFile(ctx, path)
	require.NoError(t, err)
	second, err := in.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, count)
}

func TestIngestFile_Missing(t *testing.T) {
	in := NewIngester(newTestIndex(t), IngestConfig{}, nil)
	_, err := in.IngestFile(context.Background(), "/does/not/exist.txt")
	assert.Error(t, err)
}

func TestIngest_StoreFailure(t *testing.T) {
	emb := vectorstore.NewTestEmbedder()
	emb.Err = errors.New("embedding model offline")
	store, err := vectorstore.NewChromem(vectorstore.ChromemConfig{Path: t.TempDir()}, emb, nil)
	require.NoError(t, err)

	src := t.TempDir()
	writeFile(t, src, "pci.txt", "PCI DSS requirement 8 covers authentication.")
	stats, err := NewIngester(New(store, "", nil), IngestConfig{}, nil).IngestDir(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
	assert.Len(t, stats.Failed, 1)
}

func TestSupported(t *testing.T) {
	in := NewIngester(newTestIndex(t), IngestConfig{}, nil)
	assert.True(t, in.Supported("a/B.MD"))
	assert.True(t, in.Supported("x.txt"))
	assert.False(t, in.Supported("x.pdf"))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	path := writeFile(t, t.TempDir(), "a.txt", "GDPR article 32 security of processing.")
	_, err := NewIngester(idx, IngestConfig{}, nil).IngestFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, idx.Reset(ctx))
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWatcher_ReingestsChangedFiles(t *testing.T) {
	idx := newTestIndex(t)
	dir := t.TempDir()
	in := NewIngester(idx, IngestConfig{}, nil)

	w, err := NewWatcher(in, dir, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	done := make(chan string, 4)
	w.OnIngest = func(path string, chunks int, err error) {
		if err == nil && chunks > 0 {
			done <- path
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	path := writeFile(t, dir, "nist.md", "NIST 800-53 AC-2 account management.")
	writeFile(t, dir, "ignored.bin", "x")

	select {
	case got := <-done:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("file was not re-ingested")
	}

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
