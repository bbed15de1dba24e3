package llms

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

// OllamaGenerator produces answers through a local Ollama server.
type OllamaGenerator struct {
	client *ollama.Client
	model  string
}

// NewOllamaGenerator creates a generator for the given model. baseURL
// defaults to the local Ollama address.
func NewOllamaGenerator(model, baseURL string) (*OllamaGenerator, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: 120 * time.Second}
	return &OllamaGenerator{
		client: ollama.NewClient(parsedURL, hc),
		model:  model,
	}, nil
}

// Generate runs a non-streaming completion for the prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	var result string
	err := g.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp ollama.GenerateResponse) error {
		result = resp.Response
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: ollama generate failed: %v", schema.ErrGenerationUnavailable, err)
	}
	return result, nil
}

var _ interfaces.Generator = (*OllamaGenerator)(nil)
