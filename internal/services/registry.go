package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/config"
	"github.com/fyrsmithlabs/complyd/internal/embeddings"
	"github.com/fyrsmithlabs/complyd/internal/generator"
	"github.com/fyrsmithlabs/complyd/internal/index"
	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/retrieval"
	"github.com/fyrsmithlabs/complyd/internal/retry"
	"github.com/fyrsmithlabs/complyd/internal/validation"
	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

// Registry provides access to the wired services.
type Registry interface {
	Engine() *workflow.Engine
	Memory() *memory.Coordinator
	Profile() *profile.Store
	Index() *index.Index
	Ingester() *index.Ingester
	Generator() generator.Generator
	Close() error
}

// Options overrides pieces Build would otherwise create from config.
type Options struct {
	// Embedder replaces the configured embeddings provider.
	Embedder vectorstore.Embedder

	// Generator replaces the configured generator.
	Generator generator.Generator

	// Approver reviews answers when auto-approval is off.
	Approver workflow.Approver

	// Publisher replaces the NATS publisher from events config.
	Publisher workflow.Publisher
}

type registry struct {
	engine    *workflow.Engine
	memory    *memory.Coordinator
	profile   *profile.Store
	index     *index.Index
	ingester  *index.Ingester
	generator generator.Generator
	closers   []func() error
}

func (r *registry) Engine() *workflow.Engine       { return r.engine }
func (r *registry) Memory() *memory.Coordinator    { return r.memory }
func (r *registry) Profile() *profile.Store        { return r.profile }
func (r *registry) Index() *index.Index            { return r.index }
func (r *registry) Ingester() *index.Ingester      { return r.ingester }
func (r *registry) Generator() generator.Generator { return r.generator }

// Close releases resources in reverse order of creation.
func (r *registry) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// RetryPolicy converts the retry config section.
func RetryPolicy(c config.RetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if d := c.InitialBackoff.Duration(); d > 0 {
		p.InitialBackoff = d
	}
	if d := c.MaxBackoff.Duration(); d > 0 {
		p.MaxBackoff = d
	}
	return p
}

// Build creates every service described by cfg. On error, anything
// already opened is closed.
func Build(cfg *config.Config, logger *zap.Logger, opts Options) (_ Registry, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &registry{}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	policy := RetryPolicy(cfg.Retry)

	embedder, dimension, err := r.embedder(cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	docs, err := vectorstore.NewChromem(vectorstore.ChromemConfig{
		Path:     cfg.Index.Path,
		Compress: cfg.Index.Compress,
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	r.closers = append(r.closers, docs.Close)

	r.index = index.New(docs, cfg.Index.Collection, logger)
	r.ingester = index.NewIngester(r.index, index.IngestConfig{
		ChunkSize: cfg.Index.ChunkSize,
		Overlap:   cfg.Index.Overlap,
	}, logger)

	ranker := retrieval.NewRanker(r.index, retrieval.Options{
		K:      cfg.Workflow.Retrieval.K,
		FetchK: cfg.Workflow.Retrieval.FetchK,
		Lambda: cfg.Workflow.Retrieval.Lambda,
		Floor:  cfg.Workflow.Retrieval.Floor,
	}, logger)

	backend, err := r.memoryBackend(cfg, embedder, dimension, policy, logger)
	if err != nil {
		return nil, err
	}

	r.profile, err = profile.NewStore(cfg.Profile.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening profile: %w", err)
	}
	sessions := memory.NewSessions(cfg.Memory.ShortTermSize, cfg.Memory.SessionTTL.Duration())
	r.memory = memory.NewCoordinator(backend, sessions, r.profile, logger)

	r.generator = opts.Generator
	if r.generator == nil {
		r.generator, err = generator.New(cfg.Generator, policy, logger)
		if err != nil {
			return nil, fmt.Errorf("creating generator: %w", err)
		}
	}

	publisher := opts.Publisher
	if publisher == nil && cfg.Events.Enabled {
		p, err := workflow.DialNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting event publisher: %w", err)
		}
		r.closers = append(r.closers, p.Close)
		publisher = p
	}

	r.engine, err = workflow.NewEngine(workflow.Deps{
		Generator: r.generator,
		Retriever: ranker,
		Memory:    r.memory,
		Profile:   r.profile,
		Validator: validation.NewValidator(r.generator, validation.NewJSONDetector(cfg.Validation.JSONDetector), logger),
		Approver:  opts.Approver,
		Publisher: publisher,
		RecallK:   cfg.Memory.RecallK,
		Logger:    logger,
	}, workflow.Config{
		MaxLoops:    cfg.Workflow.MaxLoops,
		AutoApprove: cfg.Workflow.AutoApprove,
	})
	if err != nil {
		return nil, fmt.Errorf("creating workflow engine: %w", err)
	}

	logger.Info("services initialized",
		zap.String("memory_backend", cfg.Memory.Backend),
		zap.String("generator", cfg.Generator.Provider),
		zap.String("index_collection", cfg.Index.Collection),
		zap.Bool("events", publisher != nil))
	return r, nil
}

func (r *registry) embedder(cfg *config.Config, logger *zap.Logger, opts Options) (vectorstore.Embedder, int, error) {
	if opts.Embedder != nil {
		if p, ok := opts.Embedder.(embeddings.Provider); ok {
			return p, p.Dimension(), nil
		}
		return opts.Embedder, 0, nil
	}
	p, err := embeddings.NewProvider(cfg.Embeddings, logger)
	if err != nil {
		return nil, 0, fmt.Errorf("creating embeddings provider: %w", err)
	}
	r.closers = append(r.closers, p.Close)
	return p, p.Dimension(), nil
}

func (r *registry) memoryBackend(cfg *config.Config, embedder vectorstore.Embedder, dimension int, policy retry.Policy, logger *zap.Logger) (memory.LongTermBackend, error) {
	var backendOpts []memory.BackendOption
	if cfg.Scrub.Enabled {
		scrubber, err := memory.NewScrubber(logger)
		if err != nil {
			return nil, err
		}
		backendOpts = append(backendOpts, memory.WithRedactor(scrubber))
	}

	switch cfg.Memory.Backend {
	case "remote":
		q := cfg.Memory.Qdrant
		vectorSize := q.VectorSize
		if vectorSize == 0 && dimension > 0 {
			vectorSize = uint64(dimension)
		}
		store, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
			Host:       q.Host,
			Port:       q.Port,
			VectorSize: vectorSize,
			UseTLS:     q.UseTLS,
			Retry:      policy,
		}, embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting remote memory: %w", err)
		}
		r.closers = append(r.closers, store.Close)
		collection := q.Collection
		if collection == "" {
			collection = cfg.Memory.Collection
		}
		backend, err := memory.NewRemoteBackend(store, collection, logger, backendOpts...)
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		store, err := vectorstore.NewChromem(vectorstore.ChromemConfig{Path: cfg.Memory.LocalPath}, embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("opening local memory: %w", err)
		}
		r.closers = append(r.closers, store.Close)
		backend, err := memory.NewLocalBackend(store, cfg.Memory.Collection, logger, backendOpts...)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}
