// Package retrieval ranks compliance document chunks for a query.
package retrieval

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/index"
)

// Defaults for Options.
const (
	DefaultK      = 12
	DefaultFetchK = 40
	DefaultLambda = 0.6
	DefaultFloor  = 0.3
)

// DocumentIndex is the query surface of the document store.
type DocumentIndex interface {
	Search(ctx context.Context, query string, k, fetchK int, lambda float64) ([]index.Hit, error)
	SearchSimple(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Chunk is a retrieved passage. Rank is its 1-based position among the
// candidates before the relevance floor was applied.
type Chunk struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Locator string  `json:"page"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"relevance_score"`
}

// Enhancement carries validation feedback into a repeated retrieval.
type Enhancement struct {
	Notes  string
	Claims []string
}

// Options tunes retrieval.
type Options struct {
	K      int
	FetchK int
	Lambda float64
	Floor  float64
}

// DefaultOptions returns K=12, FetchK=40, Lambda=0.6, Floor=0.3.
func DefaultOptions() Options {
	return Options{K: DefaultK, FetchK: DefaultFetchK, Lambda: DefaultLambda, Floor: DefaultFloor}
}

// Ranker queries a DocumentIndex with MMR, falling back to plain
// similarity, and drops chunks under the relevance floor.
type Ranker struct {
	index  DocumentIndex
	opts   Options
	logger *zap.Logger
}

// NewRanker creates a Ranker. Zero K, FetchK and Lambda take their defaults;
// a Floor outside [0,1] takes the default floor.
func NewRanker(idx DocumentIndex, opts Options, logger *zap.Logger) *Ranker {
	def := DefaultOptions()
	if opts.K <= 0 {
		opts.K = def.K
	}
	if opts.FetchK <= 0 {
		opts.FetchK = def.FetchK
	}
	if opts.Lambda <= 0 || opts.Lambda > 1 {
		opts.Lambda = def.Lambda
	}
	if opts.Floor < 0 || opts.Floor > 1 {
		opts.Floor = def.Floor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{index: idx, opts: opts, logger: logger}
}

// Options returns the effective options.
func (r *Ranker) Options() Options { return r.opts }

// Retrieve returns the chunks at or above the floor and their scores, which
// always have the same length. If both index calls fail the error is
// returned with empty results.
func (r *Ranker) Retrieve(ctx context.Context, query string, enh *Enhancement) ([]Chunk, []float64, error) {
	q := EnhanceQuery(query, enh)

	hits, err := r.index.Search(ctx, q, r.opts.K, r.opts.FetchK, r.opts.Lambda)
	if err != nil {
		r.logger.Warn("mmr search failed, falling back to similarity search", zap.Error(err))
		var simpleErr error
		hits, simpleErr = r.index.SearchSimple(ctx, q, r.opts.K)
		if simpleErr != nil {
			return []Chunk{}, []float64{}, errors.Join(err, simpleErr)
		}
	}

	chunks := make([]Chunk, 0, len(hits))
	scores := make([]float64, 0, len(hits))
	for i, h := range hits {
		if h.Score < r.opts.Floor {
			continue
		}
		chunks = append(chunks, Chunk{
			Content: h.Content,
			Source:  h.Source,
			Locator: h.Locator,
			Rank:    i + 1,
			Score:   h.Score,
		})
		scores = append(scores, h.Score)
	}

	r.logger.Debug("retrieved chunks",
		zap.Int("candidates", len(hits)),
		zap.Int("kept", len(chunks)),
		zap.Bool("enhanced", q != query),
	)
	return chunks, scores, nil
}

// EnhanceQuery appends validation feedback to query: the first two
// unsupported claims when there are any, otherwise the notes.
func EnhanceQuery(query string, enh *Enhancement) string {
	if enh == nil {
		return query
	}
	if len(enh.Claims) > 0 {
		return query + " " + strings.Join(enh.Claims[:min(2, len(enh.Claims))], " ")
	}
	return query + " " + enh.Notes
}
