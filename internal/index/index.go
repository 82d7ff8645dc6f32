// Package index holds the compliance reference documents and answers
// similarity and maximal marginal relevance queries over them.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

var tracer = otel.Tracer("complyd.index")

// ErrNoEmbeddings is returned by Search when the store does not return
// document vectors, which MMR needs.
var ErrNoEmbeddings = errors.New("store returned no embeddings for mmr")

// Metadata keys written by the ingester.
const (
	MetaSource = "source"
	MetaPage   = "page"
)

// DefaultCollection is the collection documents are ingested into.
const DefaultCollection = "compliance_docs"

// Hit is one document chunk returned by a query. Score is the chunk's own
// similarity to the query, in [0,1].
type Hit struct {
	Content string
	Source  string
	Locator string
	Score   float64
}

// Index queries one collection of a vector store.
type Index struct {
	store      vectorstore.Store
	collection string
	logger     *zap.Logger
}

// New creates an Index over collection. An empty collection name uses
// DefaultCollection.
func New(store vectorstore.Store, collection string, logger *zap.Logger) *Index {
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: store, collection: collection, logger: logger}
}

// Collection returns the collection name.
func (x *Index) Collection() string { return x.collection }

// Search fetches fetchK candidates and picks k of them by maximal marginal
// relevance. lambda weighs query relevance against diversity.
func (x *Index) Search(ctx context.Context, query string, k, fetchK int, lambda float64) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("k", k),
		attribute.Int("fetch_k", fetchK),
		attribute.Float64("lambda", lambda),
	)

	if fetchK < k {
		fetchK = k
	}
	results, err := x.store.Search(ctx, x.collection, query, fetchK)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("searching %s: %w", x.collection, err)
	}
	selected, err := mmr(results, k, lambda)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(selected))
	for i, r := range selected {
		hits[i] = toHit(r)
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// SearchSimple returns the k most similar chunks.
func (x *Index) SearchSimple(ctx context.Context, query string, k int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Index.SearchSimple")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	results, err := x.store.Search(ctx, x.collection, query, k)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("searching %s: %w", x.collection, err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = toHit(r)
	}
	return hits, nil
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.store.Count(ctx, x.collection)
}

// Reset drops every chunk.
func (x *Index) Reset(ctx context.Context) error {
	if err := x.store.DeleteCollection(ctx, x.collection); err != nil {
		return err
	}
	x.logger.Info("document index reset", zap.String("collection", x.collection))
	return nil
}

func toHit(r vectorstore.Result) Hit {
	source := r.Metadata[MetaSource]
	if source == "" {
		source = "Unknown"
	}
	locator := r.Metadata[MetaPage]
	if locator == "" {
		locator = "N/A"
	}
	return Hit{
		Content: r.Content,
		Source:  source,
		Locator: locator,
		Score:   clamp01(float64(r.Score)),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func pageLabel(ordinal int) string {
	return strconv.Itoa(ordinal)
}
