package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("complyd.vectorstore.chromem")

// listProbe is embedded to enumerate a collection; chromem has no scan API.
const listProbe = "compliance conversation"

// ChromemConfig configures the embedded database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. "~" is expanded.
	Path string

	// Compress enables gzip compression of stored documents.
	Compress bool
}

// Chromem implements Store on chromem-go. All collections share one
// persistent DB directory.
type Chromem struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromem opens (or creates) the database at config.Path.
func NewChromem(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*Chromem, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if config.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
	)
	return &Chromem{db: db, embedder: embedder, config: config, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Name implements Store.
func (s *Chromem) Name() string { return "chromem" }

func (s *Chromem) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Add implements Store. Missing IDs are filled with UUIDs.
func (s *Chromem) Add(ctx context.Context, collection string, docs []Document) (ids []string, err error) {
	ctx, span := chromemTracer.Start(ctx, "Chromem.Add")
	defer span.End()
	defer func(start time.Time) { observe(s.Name(), "add", start, err) }(time.Now())

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	ids = make([]string, len(docs))
	cdocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		cdocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: embeddings[i],
		}
	}

	// concurrency of 1: embeddings are already computed
	if err := coll.AddDocuments(ctx, cdocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents to chromem",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return ids, nil
}

// Search implements Store. Results carry their normalized embeddings.
func (s *Chromem) Search(ctx context.Context, collection, query string, k int) (results []Result, err error) {
	ctx, span := chromemTracer.Start(ctx, "Chromem.Search")
	defer span.End()
	defer func(start time.Time) { observe(s.Name(), "search", start, err) }(time.Now())

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	coll := s.db.GetCollection(collection, s.embedFunc())
	if coll == nil {
		return []Result{}, nil
	}

	// chromem requires nResults <= doc count
	n := coll.Count()
	if n == 0 {
		return []Result{}, nil
	}
	if k > n {
		k = n
	}

	res, err := coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results = convertChromemResults(res)
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// List implements Store.
func (s *Chromem) List(ctx context.Context, collection string) (results []Result, err error) {
	defer func(start time.Time) { observe(s.Name(), "list", start, err) }(time.Now())

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	coll := s.db.GetCollection(collection, s.embedFunc())
	if coll == nil || coll.Count() == 0 {
		return []Result{}, nil
	}

	res, err := coll.Query(ctx, listProbe, coll.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing collection %s: %w", collection, err)
	}
	return convertChromemResults(res), nil
}

// Count implements Store.
func (s *Chromem) Count(_ context.Context, collection string) (int, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	coll := s.db.GetCollection(collection, s.embedFunc())
	if coll == nil {
		return 0, nil
	}
	return coll.Count(), nil
}

// DeleteCollection implements Store. Deleting a missing collection is a no-op.
func (s *Chromem) DeleteCollection(_ context.Context, collection string) (err error) {
	defer func(start time.Time) { observe(s.Name(), "delete", start, err) }(time.Now())

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if s.db.GetCollection(collection, s.embedFunc()) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}
	s.logger.Info("deleted chromem collection", zap.String("collection", collection))
	return nil
}

// Close implements Store. chromem persists on every write.
func (s *Chromem) Close() error { return nil }

func convertChromemResults(res []chromem.Result) []Result {
	out := make([]Result, len(res))
	for i, r := range res {
		out[i] = Result{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  r.Metadata,
			Score:     r.Similarity,
			Embedding: r.Embedding,
		}
	}
	return out
}

var _ Store = (*Chromem)(nil)
