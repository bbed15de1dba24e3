package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"finsight/internal/rag/embeddings"
	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/pipeline"
	"finsight/internal/rag/schema"
	"finsight/internal/rag/storages/docstore"
	"finsight/internal/rag/storages/vectorstore"
	"finsight/pkg/logger"
)

// docChunker emits the whole document as one chunk.
type docChunker struct{}

func (docChunker) Chunk(_ context.Context, doc *schema.Document) ([]*schema.Chunk, error) {
	if doc.RawText == "" {
		return nil, nil
	}
	return []*schema.Chunk{{
		ChunkID:    schema.ChunkID(doc.DocID, 0, len(doc.RawText)),
		DocID:      doc.DocID,
		Text:       doc.RawText,
		EndOffset:  len(doc.RawText),
		TokenCount: len(strings.Fields(doc.RawText)),
		Metadata:   doc.Metadata.Clone(),
	}}, nil
}

var _ interfaces.Chunker = docChunker{}

func newTestConsumer(t *testing.T) (*DocumentConsumer, *vectorstore.MemoryIndex) {
	t.Helper()
	index, err := vectorstore.NewMemoryIndex(64)
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	log := logger.New("ingest-test")
	indexing := pipeline.NewIndexingPipeline(docChunker{}, embeddings.NewStaticEmbedder(64), docstore.NewInMemoryDocStore(), index, log)
	// The reader is never used by handle, so no broker is needed.
	consumer := NewDocumentConsumer([]string{"localhost:9092"}, "documents", "test-group", indexing, log)
	return consumer, index
}

func documentMessage(t *testing.T, doc *schema.Document) kafka.Message {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return kafka.Message{Value: data}
}

func TestHandleIngestsDocument(t *testing.T) {
	consumer, index := newTestConsumer(t)
	ctx := context.Background()

	msg := documentMessage(t, &schema.Document{
		DocID:    "10-K-2023",
		RawText:  "Revenue grew 12% YoY",
		Metadata: schema.Metadata{SourceType: schema.SourceFiling},
	})
	if err := consumer.handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("index holds %d entries, want 1", count)
	}
}

func TestHandleReturnsErrorForBadMessages(t *testing.T) {
	consumer, index := newTestConsumer(t)
	ctx := context.Background()

	// Undecodable payload and an unknown source type must both surface as
	// errors so the consume loop leaves the offset uncommitted.
	if err := consumer.handle(ctx, kafka.Message{Value: []byte("not json")}); err == nil {
		t.Error("expected an error for an undecodable message")
	}
	badDoc := documentMessage(t, &schema.Document{
		DocID:    "d1",
		RawText:  "x",
		Metadata: schema.Metadata{SourceType: schema.SourceType("tweet")},
	})
	if err := consumer.handle(ctx, badDoc); err == nil {
		t.Error("expected an error for an unknown source type")
	}

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("failed messages left %d index entries, want 0", count)
	}
}

func TestHandleFallsBackToMessageKeyForDocID(t *testing.T) {
	consumer, index := newTestConsumer(t)
	ctx := context.Background()

	msg := documentMessage(t, &schema.Document{
		RawText:  "Inflation was 3.2% in Q1",
		Metadata: schema.Metadata{SourceType: schema.SourceMacro},
	})
	msg.Key = []byte("macro-q1")
	if err := consumer.handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Redelivery of the same keyed message supersedes, not duplicates.
	if err := consumer.handle(ctx, msg); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}
	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("keyed redelivery left %d entries, want 1", count)
	}
}

func TestHandlePropagatesIngestFailure(t *testing.T) {
	index, err := vectorstore.NewMemoryIndex(64)
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	log := logger.New("ingest-test")
	indexing := pipeline.NewIndexingPipeline(docChunker{}, failingEmbedder{}, docstore.NewInMemoryDocStore(), index, log)
	consumer := NewDocumentConsumer([]string{"localhost:9092"}, "documents", "test-group", indexing, log)

	msg := documentMessage(t, &schema.Document{
		DocID:    "10-K-2023",
		RawText:  "Revenue grew 12% YoY",
		Metadata: schema.Metadata{SourceType: schema.SourceFiling},
	})
	if err := consumer.handle(context.Background(), msg); !errors.Is(err, schema.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable to propagate, got %v", err)
	}
}

// failingEmbedder always reports the transient embedding error.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, schema.ErrEmbeddingUnavailable
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, schema.ErrEmbeddingUnavailable
}

func (failingEmbedder) Dimension() int { return 64 }
