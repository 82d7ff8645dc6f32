package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

// Ingest defaults.
const (
	DefaultChunkSize   = 1000
	DefaultOverlap     = 200
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
)

var chunkNamespace = uuid.MustParse("6f1c1f0e-3c55-4a8e-9d2a-2b1f7c9a4e10")

// IngestConfig configures chunking and batching.
type IngestConfig struct {
	ChunkSize   int
	Overlap     int
	BatchSize   int
	Concurrency int
	// Extensions lists the file suffixes picked up from a directory.
	Extensions []string
}

// IngestStats summarizes a directory ingest.
type IngestStats struct {
	Files  int      `json:"files"`
	Chunks int      `json:"chunks"`
	Failed []string `json:"failed,omitempty"`
}

// Ingester loads text files, splits them into chunks and writes the chunks
// to the index. Chunk IDs derive from path and ordinal, so re-ingesting a
// file overwrites its chunks.
type Ingester struct {
	index    *Index
	splitter textsplitter.TextSplitter
	cfg      IngestConfig
	logger   *zap.Logger
}

// NewIngester creates an Ingester writing into idx.
func NewIngester(idx *Index, cfg IngestConfig, logger *zap.Logger) *Ingester {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".txt", ".md"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		index: idx,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.Overlap),
		),
		cfg:    cfg,
		logger: logger,
	}
}

// Supported reports whether path has an ingestible extension.
func (in *Ingester) Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range in.cfg.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IngestDir ingests every supported file under dir that dir/.complyignore
// does not exclude. A failing file is logged and recorded in the stats;
// the rest still load.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (IngestStats, error) {
	ignore, err := LoadIgnore(dir)
	if err != nil {
		return IngestStats{}, fmt.Errorf("reading %s: %w", IgnoreFile, err)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if rel, relErr := filepath.Rel(dir, path); relErr == nil && rel != "." && ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && in.Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return IngestStats{}, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	in.logger.Info("ingesting documents",
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
		zap.Int("ignore_patterns", ignore.Len()))

	var stats IngestStats
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, err := in.IngestFile(ctx, path)
		if err != nil {
			in.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
			stats.Failed = append(stats.Failed, path)
			continue
		}
		stats.Files++
		stats.Chunks += n
	}
	in.logger.Info("ingest complete",
		zap.Int("files", stats.Files),
		zap.Int("chunks", stats.Chunks),
		zap.Int("failed", len(stats.Failed)),
	)
	return stats, nil
}

// IngestFile splits one file and stores its chunks. It returns the number
// of chunks written.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	parts, err := documentloaders.NewText(f).LoadAndSplit(ctx, in.splitter)
	if err != nil {
		return 0, fmt.Errorf("splitting %s: %w", path, err)
	}

	docs := make([]vectorstore.Document, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.PageContent) == "" {
			continue
		}
		ordinal := len(docs) + 1
		docs = append(docs, vectorstore.Document{
			ID:      chunkID(path, ordinal),
			Content: p.PageContent,
			Metadata: map[string]string{
				MetaSource: path,
				MetaPage:   pageLabel(ordinal),
			},
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)
	for start := 0; start < len(docs); start += in.cfg.BatchSize {
		batch := docs[start:min(start+in.cfg.BatchSize, len(docs))]
		g.Go(func() error {
			_, err := in.index.store.Add(gctx, in.index.collection, batch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("storing chunks of %s: %w", path, err)
	}

	in.logger.Debug("ingested file", zap.String("path", path), zap.Int("chunks", len(docs)))
	return len(docs), nil
}

func chunkID(path string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", path, ordinal))).String()
}
