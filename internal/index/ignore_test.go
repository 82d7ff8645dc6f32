package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnore(t *testing.T) {
	ig, err := ParseIgnore(strings.NewReader(`# drafts are not policy
drafts/
*.bak
/archive/2019
!keep.md

**/scratch.md
*.bak
`))
	require.NoError(t, err)
	assert.Equal(t, 4, ig.Len())

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"drafts", true, true},
		{"policies/drafts", true, true},
		{"drafts", false, false},
		{"old.bak", false, true},
		{"policies/old.bak", false, true},
		{"archive/2019", true, true},
		{"archive/2020", true, false},
		{"other/archive/2019", true, false},
		{"scratch.md", false, true},
		{"policies/scratch.md", false, true},
		{"keep.md", false, false},
		{"soc2.md", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, ig.Match(tt.rel, tt.isDir))
		})
	}
}

func TestParseIgnore_InvalidPattern(t *testing.T) {
	_, err := ParseIgnore(strings.NewReader("[z-a\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestLoadIgnore_Missing(t *testing.T) {
	ig, err := LoadIgnore(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, ig.Len())
	assert.False(t, ig.Match("anything.md", false))
}

func TestIngestDir_HonorsIgnoreFile(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	src := t.TempDir()

	body := strings.Repeat("Vendor risk assessments are reviewed annually. ", 5)
	writeFile(t, src, "vendor.md", body)
	writeFile(t, src, "vendor-old.md", body)
	require.NoError(t, os.Mkdir(filepath.Join(src, "drafts"), 0o750))
	writeFile(t, filepath.Join(src, "drafts"), "wip.md", body)
	writeFile(t, src, IgnoreFile, "drafts/\n*-old.md\n")

	in := NewIngester(idx, IngestConfig{ChunkSize: 200, Overlap: 20}, nil)
	stats, err := in.IngestDir(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)

	hits, err := idx.SearchSimple(ctx, "vendor risk", 5)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "vendor.md", filepath.Base(h.Source))
	}
}
