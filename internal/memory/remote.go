package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

// RemoteBackend keeps conversations in a Qdrant service. Its scores are
// used as the final ranking.
type RemoteBackend struct {
	*storeBackend
}

// NewRemoteBackend creates a native-ranking backend over store.
func NewRemoteBackend(store vectorstore.Store, collection string, logger *zap.Logger, opts ...BackendOption) (*RemoteBackend, error) {
	b, err := newStoreBackend(store, collection, logger, opts)
	if err != nil {
		return nil, err
	}
	return &RemoteBackend{storeBackend: b}, nil
}

// Name implements LongTermBackend.
func (b *RemoteBackend) Name() string { return "remote" }

// Capability implements LongTermBackend.
func (b *RemoteBackend) Capability() Capability { return CapabilityNativeRanking }

// Store implements LongTermBackend.
func (b *RemoteBackend) Store(ctx context.Context, user, agent string, meta map[string]string) (string, error) {
	return b.storeTurn(ctx, b.Name(), user, agent, meta)
}

// Search implements LongTermBackend.
func (b *RemoteBackend) Search(ctx context.Context, query string, k int) ([]Record, error) {
	records, err := b.search(ctx, b.Name(), query, k)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Hybrid = records[i].Relevance
	}
	return records, nil
}

// ListAll implements LongTermBackend.
func (b *RemoteBackend) ListAll(ctx context.Context) ([]Record, error) {
	return b.listAll(ctx, b.Name())
}

// Clear implements LongTermBackend.
func (b *RemoteBackend) Clear(ctx context.Context) (int, error) {
	return b.clear(ctx, b.Name())
}
