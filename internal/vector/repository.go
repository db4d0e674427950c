// Package vector provides the vector-store boundary: typed chunk records
// decoded once from the store's payload, and a Repository for similarity
// search and exact point lookup.
package vector

import (
	"context"
	"errors"
)

// ErrCollectionMissing indicates the backing collection does not exist yet.
// Callers treat it as "nothing indexed", not a failure.
var ErrCollectionMissing = errors.New("collection does not exist")

// Repository provides vector storage, similarity search and point lookup.
type Repository interface {
	// Query finds the limit nearest neighbors to vector, closest first.
	// Returns ErrCollectionMissing (wrapped) when the collection is absent.
	Query(ctx context.Context, vector []float32, limit int) ([]Candidate, error)
	// FetchByChunkID returns the chunk whose chunk_id property equals id,
	// or (nil, nil) when no such point exists.
	FetchByChunkID(ctx context.Context, id string) (*Chunk, error)
	// EnsureCollection creates the backing collection if it does not exist.
	EnsureCollection(ctx context.Context) error
	// Upsert inserts or updates chunks. Each chunk must carry its embedding.
	Upsert(ctx context.Context, chunks []Chunk) error
	// Close releases resources.
	Close() error
}
