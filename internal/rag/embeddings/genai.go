package embeddings

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// GenaiEmbedder generates embeddings through the Google GenAI API.
type GenaiEmbedder struct {
	model *genai.EmbeddingModel
	dim   int
}

// NewGenaiEmbedder creates an embedder for the given Google model.
func NewGenaiEmbedder(ctx context.Context, apiKey, modelName string, dimension int) (*GenaiEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenaiEmbedder{
		model: client.EmbeddingModel(modelName),
		dim:   dimension,
	}, nil
}

// Dimension returns the fixed output vector length.
func (m *GenaiEmbedder) Dimension() int { return m.dim }

// Embed generates an embedding for a single text.
func (m *GenaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: genai embed failed: %v", schema.ErrEmbeddingUnavailable, err)
	}
	if len(res.Embedding.Values) != m.dim {
		return nil, &schema.DimensionMismatchError{Want: m.dim, Got: len(res.Embedding.Values)}
	}
	return res.Embedding.Values, nil
}

// EmbedBatch generates embeddings for a batch of texts in one request.
func (m *GenaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := m.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := m.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: genai batch embed failed: %v", schema.ErrEmbeddingUnavailable, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: genai returned %d embeddings for %d texts",
			schema.ErrEmbeddingUnavailable, len(res.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if len(emb.Values) != m.dim {
			return nil, &schema.DimensionMismatchError{Want: m.dim, Got: len(emb.Values)}
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

var _ interfaces.Embedder = (*GenaiEmbedder)(nil)
