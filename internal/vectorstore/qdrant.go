package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/complyd/internal/retry"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var qdrantTracer = otel.Tracer("complyd.vectorstore.qdrant")

const (
	payloadContent = "content"
	payloadID      = "id"
)

// QdrantConfig configures the remote store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the gRPC port (not the 6333 REST port). Default: 6334.
	Port int

	// VectorSize must match the embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize caps gRPC messages. Default: 50MB.
	MaxMessageSize int

	// Retry governs transient failure handling.
	Retry retry.Policy
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// Qdrant implements Store over the Qdrant gRPC API.
type Qdrant struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger

	// collections caches names known to exist
	collections sync.Map
}

// NewQdrant connects and health-checks the server.
func NewQdrant(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*Qdrant, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	qcfg := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext; TLS disabled", zap.String("host", config.Host))
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &Qdrant{client: client, embedder: embedder, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)
	return s, nil
}

// Name implements Store.
func (s *Qdrant) Name() string { return "qdrant" }

func (s *Qdrant) do(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, s.config.Retry, s.logger, fn)
}

func (s *Qdrant) ensureCollection(ctx context.Context, collection string) error {
	if _, ok := s.collections.Load(collection); ok {
		return nil
	}

	var exists bool
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		exists, err = s.client.CollectionExists(ctx, collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}

	if !exists {
		err = s.do(ctx, func(ctx context.Context) error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
		s.logger.Info("created qdrant collection", zap.String("collection", collection))
	}

	s.collections.Store(collection, true)
	return nil
}

// Add implements Store. IDs that are not UUIDs are kept in the payload and
// the point gets a fresh UUID.
func (s *Qdrant) Add(ctx context.Context, collection string, docs []Document) (ids []string, err error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Add")
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
	if err := s.ensureCollection(ctx, collection); err != nil {
		span.RecordError(err)
		return nil, err
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

	ids = make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		pointID := ids[i]
		if _, perr := uuid.Parse(pointID); perr != nil {
			pointID = uuid.NewString()
		}

		payload := make(map[string]*qdrant.Value, len(d.Metadata)+2)
		for k, v := range d.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}
		payload[payloadContent] = qdrant.NewValueString(d.Content)
		payload[payloadID] = qdrant.NewValueString(ids[i])

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err = s.do(ctx, func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting points to collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return ids, nil
}

// Search implements Store.
func (s *Qdrant) Search(ctx context.Context, collection, query string, k int) (results []Result, err error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Search")
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

	n, err := s.Count(ctx, collection)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []Result{}, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var points []*qdrant.ScoredPoint
	err = s.do(ctx, func(ctx context.Context) error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vec...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	results = make([]Result, len(points))
	for i, p := range points {
		results[i] = resultFromPayload(p.GetPayload())
		results[i].Score = p.GetScore()
	}
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// List implements Store.
func (s *Qdrant) List(ctx context.Context, collection string) (results []Result, err error) {
	defer func(start time.Time) { observe(s.Name(), "list", start, err) }(time.Now())

	n, err := s.Count(ctx, collection)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []Result{}, nil
	}

	var points []*qdrant.RetrievedPoint
	err = s.do(ctx, func(ctx context.Context) error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Limit:          qdrant.PtrOf(uint32(n)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling collection %s: %w", collection, err)
	}

	results = make([]Result, len(points))
	for i, p := range points {
		results[i] = resultFromPayload(p.GetPayload())
	}
	return results, nil
}

// Count implements Store.
func (s *Qdrant) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	var exists bool
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		exists, err = s.client.CollectionExists(ctx, collection)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !exists {
		return 0, nil
	}

	var n uint64
	err = s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}
	return int(n), nil
}

// DeleteCollection implements Store.
func (s *Qdrant) DeleteCollection(ctx context.Context, collection string) (err error) {
	defer func(start time.Time) { observe(s.Name(), "delete", start, err) }(time.Now())

	n, err := s.Count(ctx, collection)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	err = s.do(ctx, func(ctx context.Context) error {
		return s.client.DeleteCollection(ctx, collection)
	})
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}
	s.collections.Delete(collection)
	return nil
}

// Close closes the gRPC connection.
func (s *Qdrant) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func resultFromPayload(payload map[string]*qdrant.Value) Result {
	r := Result{Metadata: make(map[string]string, len(payload))}
	for k, v := range payload {
		sv := v.GetStringValue()
		switch k {
		case payloadContent:
			r.Content = sv
		case payloadID:
			r.ID = sv
		default:
			r.Metadata[k] = sv
		}
	}
	return r
}

var _ Store = (*Qdrant)(nil)
