package pipeline

import (
	"context"
	"fmt"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// RetrievalPolicy tunes the retriever. OverFetchFactor compensates for
// candidates lost to the score cut and deduplication; DedupOverlapFraction
// is the span-overlap fraction above which two chunks of one document
// collapse to the higher-scoring one.
type RetrievalPolicy struct {
	TopK                 int
	MinScore             float32
	OverFetchFactor      int
	DedupOverlapFraction float64
}

// Retriever turns a question into a ranked evidence list: embed the
// question, search the index, enrich hits from the doc store, drop weak
// and near-duplicate candidates, rank the rest.
type Retriever struct {
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	docStore interfaces.DocStore
	policy   RetrievalPolicy
	log      *logger.Logger
}

// NewRetriever creates a new Retriever.
func NewRetriever(
	embedder interfaces.Embedder,
	index interfaces.VectorIndex,
	docStore interfaces.DocStore,
	policy RetrievalPolicy,
	log *logger.Logger,
) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		docStore: docStore,
		policy:   policy,
		log:      log,
	}
}

// Retrieve returns up to TopK evidence items in descending score order,
// rank 1-based. A thin result is not an error: the caller reads the
// shortfall off the result length.
func (r *Retriever) Retrieve(ctx context.Context, question string, filter map[string]string) ([]schema.EvidenceItem, error) {
	queryVec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := r.index.Search(ctx, queryVec, r.policy.TopK*r.policy.OverFetchFactor, filter)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	// Score cut before the doc-store round trip keeps the fetch small.
	strong := hits[:0]
	for _, h := range hits {
		if h.Score >= r.policy.MinScore {
			strong = append(strong, h)
		}
	}
	if len(strong) == 0 {
		return nil, nil
	}

	ids := make([]string, len(strong))
	for i, h := range strong {
		ids[i] = h.ChunkID
	}
	chunks, err := r.docStore.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	var items []schema.EvidenceItem
	for _, h := range strong {
		chunk, ok := chunks[h.ChunkID]
		if !ok {
			// The index is a derived projection; a dangling entry means a
			// delete raced this query. Skip it.
			r.log.WithField("chunk_id", h.ChunkID).Warn("index entry has no chunk in the doc store")
			continue
		}
		if r.isNearDuplicate(chunk, items) {
			continue
		}
		items = append(items, schema.EvidenceItem{Chunk: chunk, Score: h.Score})
		if len(items) == r.policy.TopK {
			break
		}
	}

	for i := range items {
		items[i].Rank = i + 1
	}
	return items, nil
}

// isNearDuplicate reports whether the chunk overlaps a higher-scoring kept
// chunk of the same document by more than the configured fraction.
// Candidates arrive in descending score order, so the kept chunk always
// wins the collapse.
func (r *Retriever) isNearDuplicate(chunk *schema.Chunk, kept []schema.EvidenceItem) bool {
	for i := range kept {
		other := kept[i].Chunk
		if other.DocID != chunk.DocID {
			continue
		}
		if spanOverlapFraction(chunk, other) > r.policy.DedupOverlapFraction {
			return true
		}
	}
	return false
}

// spanOverlapFraction is the shared span length relative to the shorter of
// the two chunks.
func spanOverlapFraction(a, b *schema.Chunk) float64 {
	lo := a.StartOffset
	if b.StartOffset > lo {
		lo = b.StartOffset
	}
	hi := a.EndOffset
	if b.EndOffset < hi {
		hi = b.EndOffset
	}
	if hi <= lo {
		return 0
	}
	shorter := a.EndOffset - a.StartOffset
	if l := b.EndOffset - b.StartOffset; l < shorter {
		shorter = l
	}
	if shorter == 0 {
		return 0
	}
	return float64(hi-lo) / float64(shorter)
}
