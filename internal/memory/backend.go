package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

// Redactor removes secrets from text before it is persisted.
type Redactor interface {
	Redact(text string) string
}

// BackendOption configures a vector-store backed memory backend.
type BackendOption func(*storeBackend)

// WithRedactor scrubs both sides of a turn before storage.
func WithRedactor(r Redactor) BackendOption {
	return func(b *storeBackend) { b.redactor = r }
}

// WithBackendClock overrides the timestamp source.
func WithBackendClock(now func() time.Time) BackendOption {
	return func(b *storeBackend) { b.now = now }
}

// storeBackend is the shared vectorstore plumbing for the local and remote
// backends. The two differ in how Search scores results.
type storeBackend struct {
	store      vectorstore.Store
	collection string
	redactor   Redactor
	logger     *zap.Logger
	now        func() time.Time
}

func newStoreBackend(store vectorstore.Store, collection string, logger *zap.Logger, opts []BackendOption) (*storeBackend, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrBackendUnavailable)
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &storeBackend{
		store:      store,
		collection: collection,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// storeTurn persists a turn. Caller metadata cannot override the reserved keys.
func (b *storeBackend) storeTurn(ctx context.Context, backend, user, agent string, meta map[string]string) (id string, err error) {
	defer func() { recordOp(backend, "store", err) }()

	if strings.TrimSpace(user) == "" {
		return "", ErrEmptyTurn
	}
	if b.redactor != nil {
		user = b.redactor.Redact(user)
		agent = b.redactor.Redact(agent)
	}

	id = uuid.NewString()
	stored, _ := truncate(agent, storedResponseLimit)

	md := make(map[string]string, len(meta)+4)
	for k, v := range meta {
		md[k] = v
	}
	md[MetaConversationID] = id
	md[MetaTimestamp] = b.now().UTC().Format(time.RFC3339)
	md[MetaUserMessage] = user
	md[MetaAgentResponse] = stored

	doc := vectorstore.Document{
		ID:       id,
		Content:  fmt.Sprintf("User Question: %s\n\nAgent Response: %s", user, agent),
		Metadata: md,
	}
	if _, err := b.store.Add(ctx, b.collection, []vectorstore.Document{doc}); err != nil {
		return "", fmt.Errorf("%w: storing conversation: %v", ErrBackendUnavailable, err)
	}

	b.logger.Debug("stored conversation",
		zap.String("backend", backend),
		zap.String("conversation_id", id),
	)
	return id, nil
}

func (b *storeBackend) search(ctx context.Context, backend, query string, fetch int) (records []Record, err error) {
	defer func(start time.Time) {
		SearchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
		recordOp(backend, "search", err)
	}(time.Now())

	if fetch <= 0 || strings.TrimSpace(query) == "" {
		return []Record{}, nil
	}
	results, err := b.store.Search(ctx, b.collection, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: searching memories: %v", ErrBackendUnavailable, err)
	}

	records = make([]Record, len(results))
	for i, r := range results {
		records[i] = recordFromResult(r)
	}
	return records, nil
}

func (b *storeBackend) listAll(ctx context.Context, backend string) (records []Record, err error) {
	defer func() { recordOp(backend, "list", err) }()

	results, err := b.store.List(ctx, b.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: listing memories: %v", ErrBackendUnavailable, err)
	}
	records = make([]Record, len(results))
	for i, r := range results {
		records[i] = recordFromResult(r)
	}
	return records, nil
}

func (b *storeBackend) clear(ctx context.Context, backend string) (n int, err error) {
	defer func() { recordOp(backend, "clear", err) }()

	n, err = b.store.Count(ctx, b.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: counting memories: %v", ErrBackendUnavailable, err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.store.DeleteCollection(ctx, b.collection); err != nil {
		return 0, fmt.Errorf("%w: clearing memories: %v", ErrBackendUnavailable, err)
	}
	b.logger.Info("semantic memory cleared",
		zap.String("backend", backend),
		zap.Int("deleted", n),
	)
	return n, nil
}

func recordFromResult(r vectorstore.Result) Record {
	md := r.Metadata
	user := md[MetaUserMessage]
	agent := md[MetaAgentResponse]

	text := r.Content
	if user != "" {
		text = memoryText(user, agent)
	}
	id := md[MetaConversationID]
	if id == "" {
		id = r.ID
	}
	return Record{
		ID:            id,
		Text:          text,
		UserMessage:   user,
		AgentResponse: agent,
		Timestamp:     md[MetaTimestamp],
		Relevance:     clamp01(float64(r.Score)),
		Metadata:      md,
	}
}
