package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// OllamaEmbedder generates embeddings through a local Ollama server.
type OllamaEmbedder struct {
	client *ollama.Client
	model  string
	dim    int
}

// NewOllamaEmbedder creates an embedder for the given model. baseURL
// defaults to the local Ollama address. dimension is the vector length the
// model is configured to produce; responses of any other length are
// rejected as a dimension mismatch.
func NewOllamaEmbedder(model, baseURL string, dimension int) (*OllamaEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &OllamaEmbedder{
		client: ollama.NewClient(parsedURL, hc),
		model:  model,
		dim:    dimension,
	}, nil
}

// Dimension returns the fixed output vector length.
func (m *OllamaEmbedder) Dimension() int { return m.dim }

// Embed generates an embedding for a single text.
func (m *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for a batch of texts in one request.
func (m *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := m.client.Embed(ctx, &ollama.EmbedRequest{
		Model: m.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embed failed: %v", schema.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d texts",
			schema.ErrEmbeddingUnavailable, len(resp.Embeddings), len(texts))
	}
	for _, v := range resp.Embeddings {
		if len(v) != m.dim {
			return nil, &schema.DimensionMismatchError{Want: m.dim, Got: len(v)}
		}
	}
	return resp.Embeddings, nil
}

var _ interfaces.Embedder = (*OllamaEmbedder)(nil)
