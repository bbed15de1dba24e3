package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// entry is one stored vector. Vectors are L2-normalized at insertion so a
// search is a plain dot product. seq records first-insertion order and is
// preserved across replacement, which is what makes tie-breaking stable.
type entry struct {
	ChunkID  string            `json:"chunk_id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Seq      uint64            `json:"seq"`
}

// MemoryIndex is an exact brute-force vector index: O(n) per query,
// correct by construction, and the baseline any approximate index is
// validated against. Reads run concurrently under an RWMutex; writers
// replace whole entries so a reader never observes a torn update.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]*entry
	nextSeq uint64
}

// NewMemoryIndex creates an empty index with a fixed vector dimension.
func NewMemoryIndex(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dimension)
	}
	return &MemoryIndex{
		dim:     dimension,
		entries: make(map[string]*entry),
	}, nil
}

// Dimension returns the fixed vector length enforced by this index.
func (m *MemoryIndex) Dimension() int { return m.dim }

// Upsert inserts or replaces the entry for chunkID. Replacement keeps the
// original insertion sequence so rankings stay reproducible.
func (m *MemoryIndex) Upsert(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error {
	if len(vector) != m.dim {
		return &schema.DimensionMismatchError{Want: m.dim, Got: len(vector)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := normalize(vector)
	meta := cloneMeta(metadata)

	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.nextSeq
	if existing, ok := m.entries[chunkID]; ok {
		seq = existing.Seq
	} else {
		m.nextSeq++
	}
	m.entries[chunkID] = &entry{ChunkID: chunkID, Vector: normalized, Metadata: meta, Seq: seq}
	return nil
}

// Delete removes the entry for chunkID; deleting an absent id is a no-op.
func (m *MemoryIndex) Delete(ctx context.Context, chunkID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, chunkID)
	return nil
}

// Search returns up to k entries ranked by cosine similarity against the
// query, in non-increasing score order. Ties rank the earlier-inserted
// entry first. filter restricts results to entries whose metadata matches
// every key exactly.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]schema.SearchHit, error) {
	if len(query) != m.dim {
		return nil, &schema.DimensionMismatchError{Want: m.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := normalize(query)

	m.mu.RLock()
	type scored struct {
		hit schema.SearchHit
		seq uint64
	}
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		if !matches(e.Metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{
			hit: schema.SearchHit{ChunkID: e.ChunkID, Score: dot(q, e.Vector)},
			seq: e.Seq,
		})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	hits := make([]schema.SearchHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// snapshot is the on-disk representation. The dimension is stored so a
// load against a differently-configured embedder fails fast instead of
// silently truncating or padding vectors.
type snapshot struct {
	Dimension int      `json:"dimension"`
	NextSeq   uint64   `json:"next_seq"`
	Entries   []*entry `json:"entries"`
}

// Save writes a JSON snapshot of the index.
func (m *MemoryIndex) Save(w io.Writer) error {
	m.mu.RLock()
	snap := snapshot{Dimension: m.dim, NextSeq: m.nextSeq, Entries: make([]*entry, 0, len(m.entries))}
	for _, e := range m.entries {
		snap.Entries = append(snap.Entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Seq < snap.Entries[j].Seq })
	return json.NewEncoder(w).Encode(&snap)
}

// Load reads a snapshot written by Save. wantDimension is the dimension
// the caller's embedder produces; a mismatch fails with a
// DimensionMismatchError before any entry is applied.
func Load(r io.Reader, wantDimension int) (*MemoryIndex, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode index snapshot: %w", err)
	}
	if snap.Dimension <= 0 {
		return nil, fmt.Errorf("index snapshot has invalid dimension %d", snap.Dimension)
	}
	if wantDimension > 0 && snap.Dimension != wantDimension {
		return nil, &schema.DimensionMismatchError{Want: wantDimension, Got: snap.Dimension}
	}

	idx, err := NewMemoryIndex(snap.Dimension)
	if err != nil {
		return nil, err
	}
	for _, e := range snap.Entries {
		if len(e.Vector) != snap.Dimension {
			return nil, &schema.DimensionMismatchError{Want: snap.Dimension, Got: len(e.Vector)}
		}
		idx.entries[e.ChunkID] = e
		if e.Seq >= idx.nextSeq {
			idx.nextSeq = e.Seq + 1
		}
	}
	if snap.NextSeq > idx.nextSeq {
		idx.nextSeq = snap.NextSeq
	}
	return idx, nil
}

// SaveFile writes the snapshot to path, replacing any previous snapshot.
func (m *MemoryIndex) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()
	return m.Save(f)
}

// LoadFile reads a snapshot from path.
func LoadFile(path string, wantDimension int) (*MemoryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()
	return Load(f, wantDimension)
}

func matches(meta, filter map[string]string) bool {
	for k, want := range filter {
		if meta[k] != want {
			return false
		}
	}
	return true
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ interfaces.VectorIndex = (*MemoryIndex)(nil)
