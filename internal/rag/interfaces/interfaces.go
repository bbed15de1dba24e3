package interfaces

import (
	"context"

	"finsight/internal/rag/schema"
)

// Loader is the interface for loading data from a source (e.g. a file)
// and converting it into Document records for ingestion.
type Loader interface {
	Load(ctx context.Context, path string) ([]*schema.Document, error)
}

// Chunker splits a document into overlapping chunks under a policy owned
// by the implementation. Identical (document, policy) input must yield
// identical chunk ids and spans.
type Chunker interface {
	Chunk(ctx context.Context, doc *schema.Document) ([]*schema.Chunk, error)
}

// Embedder maps text to a fixed-dimension dense vector. EmbedBatch is a
// performance form only: EmbedBatch(xs)[i] must equal Embed(xs[i]).
// Backend failures are reported as schema.ErrEmbeddingUnavailable; retry
// policy belongs to the caller.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed output vector length, queryable before use.
	Dimension() int
}

// Generator produces an answer from a fully assembled prompt. Backend
// failures are reported as schema.ErrGenerationUnavailable.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorIndex stores chunk vectors plus filterable metadata. It is a
// derived, rebuildable projection of the doc store: replaying Upsert over
// all current chunks reconstructs it exactly.
//
// Search scores by cosine similarity (dot product of L2-normalized
// vectors) and returns up to k hits in non-increasing score order, ties
// broken by insertion order. An optional filter restricts hits to entries
// whose metadata matches every key exactly.
//
// Reads are safe to run concurrently; a concurrent reader sees each entry
// either before or after an update, never torn.
type VectorIndex interface {
	Upsert(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, chunkID string) error
	Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]schema.SearchHit, error)

	// Dimension is the fixed vector length enforced for the lifetime of
	// the index. Upsert and Search fail with a DimensionMismatchError on
	// any other length.
	Dimension() int
	Count(ctx context.Context) (int, error)
}

// DocStore is the source of truth for chunks, keyed by chunk id. The
// vector index references chunks through it rather than duplicating text.
type DocStore interface {
	Put(ctx context.Context, chunks []*schema.Chunk) error
	Get(ctx context.Context, ids []string) (map[string]*schema.Chunk, error)

	// DeleteByDoc removes every chunk derived from the given document and
	// returns their ids so callers can drop the matching index entries.
	DeleteByDoc(ctx context.Context, docID string) ([]string, error)
}
