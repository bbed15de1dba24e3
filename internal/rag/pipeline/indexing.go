package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// IndexingPipeline turns documents into chunks, embeds them, and stores
// them in the doc store and the vector index. Re-ingesting a document id
// supersedes the previous version: old chunks and index entries are
// removed before the new ones are written.
type IndexingPipeline struct {
	chunker  interfaces.Chunker
	embedder interfaces.Embedder
	docStore interfaces.DocStore
	index    interfaces.VectorIndex
	log      *logger.Logger
}

// NewIndexingPipeline creates a new IndexingPipeline.
func NewIndexingPipeline(
	chunker interfaces.Chunker,
	embedder interfaces.Embedder,
	docStore interfaces.DocStore,
	index interfaces.VectorIndex,
	log *logger.Logger,
) *IndexingPipeline {
	return &IndexingPipeline{
		chunker:  chunker,
		embedder: embedder,
		docStore: docStore,
		index:    index,
		log:      log,
	}
}

// IngestDocument chunks, embeds and stores one document, returning the
// number of chunks indexed.
func (p *IndexingPipeline) IngestDocument(ctx context.Context, doc *schema.Document) (int, error) {
	if doc.DocID == "" {
		return 0, fmt.Errorf("document has no id")
	}
	if !doc.Metadata.SourceType.Valid() {
		return 0, fmt.Errorf("document %s has unknown source type %q", doc.DocID, doc.Metadata.SourceType)
	}

	chunks, err := p.chunker.Chunk(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk document %s: %w", doc.DocID, err)
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err = p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks of document %s: %w", doc.DocID, err)
		}
	}

	// Documents are immutable: a re-ingested id replaces all derived
	// state. The delete runs only after the replacement chunks are
	// embedded, so a failed re-ingest leaves the previous version intact.
	if err := p.DeleteDocument(ctx, doc.DocID); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		p.log.WithField("doc_id", doc.DocID).Warn("document produced no chunks")
		return 0, nil
	}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := p.docStore.Put(gCtx, chunks); err != nil {
			return fmt.Errorf("failed to store chunks of document %s: %w", doc.DocID, err)
		}
		return nil
	})
	eg.Go(func() error {
		for i, c := range chunks {
			if err := p.index.Upsert(gCtx, c.ChunkID, vectors[i], c.FilterView()); err != nil {
				return fmt.Errorf("failed to index chunk %s: %w", c.ChunkID, err)
			}
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	p.log.WithPayload(map[string]interface{}{
		"doc_id": doc.DocID,
		"chunks": len(chunks),
	}).Info("document indexed")
	return len(chunks), nil
}

// IngestBatch ingests documents in order, stopping at the first failure.
func (p *IndexingPipeline) IngestBatch(ctx context.Context, docs []*schema.Document) (int, error) {
	total := 0
	for _, doc := range docs {
		n, err := p.IngestDocument(ctx, doc)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeleteDocument removes every chunk and index entry derived from docID.
func (p *IndexingPipeline) DeleteDocument(ctx context.Context, docID string) error {
	ids, err := p.docStore.DeleteByDoc(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of document %s: %w", docID, err)
	}
	for _, id := range ids {
		if err := p.index.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete index entry %s: %w", id, err)
		}
	}
	return nil
}
