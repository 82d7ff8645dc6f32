// Package vectorstore stores embedded text in named collections.
//
// Two implementations share the Store interface: Chromem, an embedded
// persistent database used for the document index and local memory, and
// Qdrant, a gRPC client for a remote memory service.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates the remote store is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is a unit of text to store.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is a stored document with its similarity to a query.
type Result struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Score     float32
	Embedding []float32
}

// Store is the storage contract shared by the embedded and remote backends.
type Store interface {
	// Add embeds and stores docs, returning their IDs.
	Add(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Search returns up to k results ordered by similarity, highest first.
	Search(ctx context.Context, collection, query string, k int) ([]Result, error)

	// List returns every document in the collection.
	List(ctx context.Context, collection string) ([]Result, error)

	// Count returns the number of documents; a missing collection counts zero.
	Count(ctx context.Context, collection string) (int, error)

	// DeleteCollection removes the collection and its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Name identifies the backend in logs and metrics.
	Name() string

	Close() error
}
