package docstore

import (
	"context"
	"sync"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// InMemoryDocStore is a thread-safe, in-memory chunk store. It keeps a
// secondary index from document id to chunk ids so re-ingestion can drop
// every chunk of a superseded document in one call.
type InMemoryDocStore struct {
	mu     sync.RWMutex
	chunks map[string]*schema.Chunk
	byDoc  map[string]map[string]struct{}
}

// NewInMemoryDocStore creates an empty store.
func NewInMemoryDocStore() *InMemoryDocStore {
	return &InMemoryDocStore{
		chunks: make(map[string]*schema.Chunk),
		byDoc:  make(map[string]map[string]struct{}),
	}
}

// Put stores chunks, replacing any existing chunk with the same id.
func (s *InMemoryDocStore) Put(ctx context.Context, chunks []*schema.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ChunkID] = c
		ids, ok := s.byDoc[c.DocID]
		if !ok {
			ids = make(map[string]struct{})
			s.byDoc[c.DocID] = ids
		}
		ids[c.ChunkID] = struct{}{}
	}
	return nil
}

// Get returns the chunks found for the given ids, keyed by chunk id.
// Missing ids are simply absent from the result.
func (s *InMemoryDocStore) Get(ctx context.Context, ids []string) (map[string]*schema.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]*schema.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

// DeleteByDoc removes every chunk of the given document and returns their
// ids so the caller can drop the matching vector index entries.
func (s *InMemoryDocStore) DeleteByDoc(ctx context.Context, docID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.byDoc[docID]))
	for id := range s.byDoc[docID] {
		delete(s.chunks, id)
		ids = append(ids, id)
	}
	delete(s.byDoc, docID)
	return ids, nil
}

var _ interfaces.DocStore = (*InMemoryDocStore)(nil)
