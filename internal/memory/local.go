package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/vectorstore"
)

// localFetchFactor widens the candidate pool so hybrid scoring can promote
// recent or high-quality turns that rank lower on similarity alone.
const localFetchFactor = 2

// LocalBackend keeps conversations in an embedded chromem store and leaves
// scoring to the coordinator.
type LocalBackend struct {
	*storeBackend
}

// NewLocalBackend creates a similarity backend over store.
func NewLocalBackend(store vectorstore.Store, collection string, logger *zap.Logger, opts ...BackendOption) (*LocalBackend, error) {
	b, err := newStoreBackend(store, collection, logger, opts)
	if err != nil {
		return nil, err
	}
	return &LocalBackend{storeBackend: b}, nil
}

// Name implements LongTermBackend.
func (b *LocalBackend) Name() string { return "local" }

// Capability implements LongTermBackend.
func (b *LocalBackend) Capability() Capability { return CapabilitySimilarity }

// Store implements LongTermBackend.
func (b *LocalBackend) Store(ctx context.Context, user, agent string, meta map[string]string) (string, error) {
	return b.storeTurn(ctx, b.Name(), user, agent, meta)
}

// Search implements LongTermBackend. It returns up to 2k candidates ordered
// by similarity; the coordinator rescores and truncates to k.
func (b *LocalBackend) Search(ctx context.Context, query string, k int) ([]Record, error) {
	return b.search(ctx, b.Name(), query, k*localFetchFactor)
}

// ListAll implements LongTermBackend.
func (b *LocalBackend) ListAll(ctx context.Context) ([]Record, error) {
	return b.listAll(ctx, b.Name())
}

// Clear implements LongTermBackend.
func (b *LocalBackend) Clear(ctx context.Context) (int, error) {
	return b.clear(ctx, b.Name())
}
