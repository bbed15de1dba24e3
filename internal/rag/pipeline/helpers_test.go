package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"finsight/internal/rag/embeddings"
	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
	"finsight/internal/rag/storages/docstore"
	"finsight/internal/rag/storages/vectorstore"
	"finsight/pkg/logger"
)

const testDim = 256

func testLogger() *logger.Logger {
	return logger.New("pipeline-test")
}

// wordCounter sizes text in whitespace-separated words, a stand-in for the
// tokenizer-backed counter that keeps tests fast and exact.
type wordCounter struct{}

func (wordCounter) TokenCount(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Truncate(text string, maxTokens int) string {
	fields := strings.Fields(text)
	if len(fields) <= maxTokens {
		return text
	}
	return strings.Join(fields[:maxTokens], " ")
}

// lineChunker cuts one chunk per non-blank line, with real byte offsets so
// span-based deduplication behaves like it does with the sentence splitter.
type lineChunker struct{}

func (lineChunker) Chunk(_ context.Context, doc *schema.Document) ([]*schema.Chunk, error) {
	var chunks []*schema.Chunk
	start := 0
	for start < len(doc.RawText) {
		end := strings.IndexByte(doc.RawText[start:], '\n')
		if end < 0 {
			end = len(doc.RawText)
		} else {
			end = start + end + 1
		}
		text := doc.RawText[start:end]
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, &schema.Chunk{
				ChunkID:     schema.ChunkID(doc.DocID, start, end),
				DocID:       doc.DocID,
				Text:        text,
				StartOffset: start,
				EndOffset:   end,
				TokenCount:  len(strings.Fields(text)),
				Metadata:    doc.Metadata.Clone(),
			})
		}
		start = end
	}
	return chunks, nil
}

var _ interfaces.Chunker = lineChunker{}

// flakyEmbedder fails the next n calls with the transient embedding error,
// then delegates.
type flakyEmbedder struct {
	inner    interfaces.Embedder
	failures int
}

func (f *flakyEmbedder) fail() error {
	if f.failures == 0 {
		return nil
	}
	f.failures--
	return fmt.Errorf("%w: backend down", schema.ErrEmbeddingUnavailable)
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *flakyEmbedder) Dimension() int { return f.inner.Dimension() }

var _ interfaces.Embedder = (*flakyEmbedder)(nil)

// flakyGenerator fails the next n calls with the transient generation
// error, then delegates.
type flakyGenerator struct {
	inner    interfaces.Generator
	failures int
}

func (f *flakyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", fmt.Errorf("%w: backend down", schema.ErrGenerationUnavailable)
	}
	return f.inner.Generate(ctx, prompt)
}

var _ interfaces.Generator = (*flakyGenerator)(nil)

// scriptedGenerator returns a fixed answer regardless of the prompt.
type scriptedGenerator struct {
	answer string
}

func (g scriptedGenerator) Generate(context.Context, string) (string, error) {
	return g.answer, nil
}

func newTestStores(t *testing.T) (*vectorstore.MemoryIndex, *docstore.InMemoryDocStore) {
	t.Helper()
	index, err := vectorstore.NewMemoryIndex(testDim)
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	return index, docstore.NewInMemoryDocStore()
}

func newTestIndexing(t *testing.T, embedder interfaces.Embedder) (*IndexingPipeline, *vectorstore.MemoryIndex, *docstore.InMemoryDocStore) {
	t.Helper()
	index, store := newTestStores(t)
	if embedder == nil {
		embedder = embeddings.NewStaticEmbedder(testDim)
	}
	return NewIndexingPipeline(lineChunker{}, embedder, store, index, testLogger()), index, store
}

func testDocument(docID string, sourceType schema.SourceType, text string) *schema.Document {
	return &schema.Document{
		DocID:   docID,
		RawText: text,
		Metadata: schema.Metadata{
			SourceType: sourceType,
			Fields:     map[string]string{"ticker": "ACME"},
		},
	}
}

func mustIngest(t *testing.T, p *IndexingPipeline, doc *schema.Document) int {
	t.Helper()
	n, err := p.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("IngestDocument(%s): %v", doc.DocID, err)
	}
	return n
}
