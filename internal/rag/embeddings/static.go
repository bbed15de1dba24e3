package embeddings

import (
	"context"
	"hash/fnv"
	"strings"

	"finsight/internal/rag/interfaces"
)

// StaticEmbedder is a deterministic, offline embedder: each token is
// hashed into a fixed bucket, so texts sharing vocabulary end up with
// similar directions. It exists for tests and for running the pipeline
// without a model backend; it never fails.
type StaticEmbedder struct {
	dim int
}

// NewStaticEmbedder creates a hash-bucket embedder of the given dimension.
func NewStaticEmbedder(dimension int) *StaticEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &StaticEmbedder{dim: dimension}
}

// Dimension returns the fixed output vector length.
func (m *StaticEmbedder) Dimension() int { return m.dim }

// Embed maps the text to a bag-of-tokens hash vector.
func (m *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()\"'")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		// Reduce in uint32: int(sum) is negative on 32-bit platforms for
		// large hashes.
		vec[h.Sum32()%uint32(m.dim)] += 1
	}
	return vec, nil
}

// EmbedBatch embeds each text independently; batching changes nothing.
func (m *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var _ interfaces.Embedder = (*StaticEmbedder)(nil)
