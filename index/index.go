// Package index implements the append-only vector index: chunk text
// plus embedding plus metadata, with similarity search over the whole
// collection. Entries are only ever added or wiped by a full reset;
// there is no per-document delete.
package index

import (
	"context"

	"arx/types"
)

// Entry pairs a chunk with its embedding in storage.
type Entry struct {
	Chunk     types.Chunk `json:"chunk"`
	Embedding []float32   `json:"embedding"`
}

// Index is the vector index contract shared by the file and Postgres
// backends. Implementations embed queries and chunks with the same
// model. Index is not self-synchronizing: the engine serializes access
// behind one lock.
type Index interface {
	// Add embeds the chunks and appends them, persisting synchronously
	// after the batch.
	Add(ctx context.Context, chunks []types.Chunk) error

	// Search returns up to k nearest chunks by embedding similarity,
	// best first. An empty index yields an empty result, not an error.
	Search(ctx context.Context, query string, k int) ([]types.ScoredChunk, error)

	// Reset discards all entries and persists the empty index.
	Reset(ctx context.Context) error

	// Reload re-reads persisted state, recovering to an empty index
	// when storage is missing or unreadable.
	Reload(ctx context.Context) error

	// DocumentIDs returns the set of document ids currently indexed.
	DocumentIDs(ctx context.Context) (map[string]struct{}, error)

	// Count reports the number of stored entries.
	Count(ctx context.Context) (int, error)
}

func cosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	// vectors are L2-normalized by the embedder
	return dot
}
