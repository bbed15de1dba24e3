package pipeline

import (
	"context"
	"errors"
	"testing"

	"finsight/internal/rag/embeddings"
	"finsight/internal/rag/schema"
)

func TestIngestDocumentStoresChunksAndVectors(t *testing.T) {
	p, index, store := newTestIndexing(t, nil)
	ctx := context.Background()

	doc := testDocument("10-K-2023", schema.SourceFiling,
		"Revenue grew 12% YoY.\nOperating margin expanded to 21%.\n")
	n := mustIngest(t, p, doc)
	if n != 2 {
		t.Fatalf("expected 2 chunks indexed, got %d", n)
	}

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("index holds %d entries, want 2", count)
	}

	wantID := schema.ChunkID(doc.DocID, 0, len("Revenue grew 12% YoY.\n"))
	chunks, err := store.Get(ctx, []string{wantID})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	chunk, ok := chunks[wantID]
	if !ok {
		t.Fatalf("doc store has no chunk %s", wantID)
	}
	if chunk.Text != "Revenue grew 12% YoY.\n" {
		t.Errorf("chunk text %q is not the verbatim document slice", chunk.Text)
	}
	if chunk.Metadata.SourceType != schema.SourceFiling {
		t.Errorf("chunk source type = %q, want filing", chunk.Metadata.SourceType)
	}
}

func TestIngestDocumentIsIdempotent(t *testing.T) {
	p, index, _ := newTestIndexing(t, nil)
	ctx := context.Background()

	doc := testDocument("10-K-2023", schema.SourceFiling,
		"Revenue grew 12% YoY.\nOperating margin expanded to 21%.\n")
	mustIngest(t, p, doc)
	mustIngest(t, p, doc)

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("re-ingesting the same document left %d entries, want 2", count)
	}
}

func TestReingestSupersedesPreviousVersion(t *testing.T) {
	p, index, store := newTestIndexing(t, nil)
	ctx := context.Background()

	old := testDocument("10-K-2023", schema.SourceFiling,
		"Revenue grew 12% YoY.\nOperating margin expanded to 21%.\n")
	mustIngest(t, p, old)

	oldID := schema.ChunkID(old.DocID, 0, len("Revenue grew 12% YoY.\n"))

	revised := testDocument("10-K-2023", schema.SourceFiling,
		"Restated: revenue grew 11% YoY after adjustments.\n")
	n := mustIngest(t, p, revised)
	if n != 1 {
		t.Fatalf("expected 1 chunk from the revised document, got %d", n)
	}

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("index holds %d entries after re-ingest, want 1", count)
	}

	chunks, err := store.Get(ctx, []string{oldID})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := chunks[oldID]; ok {
		t.Errorf("superseded chunk %s is still in the doc store", oldID)
	}
}

func TestIngestRejectsInvalidDocuments(t *testing.T) {
	p, _, _ := newTestIndexing(t, nil)
	ctx := context.Background()

	if _, err := p.IngestDocument(ctx, &schema.Document{RawText: "x"}); err == nil {
		t.Error("expected an error for a document without an id")
	}

	doc := testDocument("d1", schema.SourceType("tweet"), "x")
	if _, err := p.IngestDocument(ctx, doc); err == nil {
		t.Error("expected an error for an unknown source type")
	}
}

func TestIngestEmptyDocumentIsNotAnError(t *testing.T) {
	p, index, _ := newTestIndexing(t, nil)
	ctx := context.Background()

	n, err := p.IngestDocument(ctx, testDocument("empty", schema.SourceMacro, ""))
	if err != nil {
		t.Fatalf("IngestDocument: %v", err)
	}
	if n != 0 {
		t.Errorf("empty document produced %d chunks, want 0", n)
	}
	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("index holds %d entries, want 0", count)
	}
}

func TestIngestSurfacesEmbeddingFailure(t *testing.T) {
	embedder := &flakyEmbedder{inner: embeddings.NewStaticEmbedder(testDim), failures: 1 << 30}
	p, index, _ := newTestIndexing(t, embedder)
	ctx := context.Background()

	doc := testDocument("d1", schema.SourceFiling, "Revenue grew 12% YoY.\n")
	_, err := p.IngestDocument(ctx, doc)
	if !errors.Is(err, schema.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("failed ingest left %d index entries, want 0", count)
	}
}

func TestFailedReingestKeepsPreviousVersion(t *testing.T) {
	embedder := &flakyEmbedder{inner: embeddings.NewStaticEmbedder(testDim)}
	p, index, store := newTestIndexing(t, embedder)
	ctx := context.Background()

	doc := testDocument("10-K-2023", schema.SourceFiling, "Revenue grew 12% YoY.\n")
	mustIngest(t, p, doc)
	oldID := schema.ChunkID(doc.DocID, 0, len(doc.RawText))

	embedder.failures = 1
	revised := testDocument("10-K-2023", schema.SourceFiling, "Restated: revenue grew 11% YoY.\n")
	if _, err := p.IngestDocument(ctx, revised); !errors.Is(err, schema.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}

	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("failed re-ingest left %d index entries, want the previous version's 1", count)
	}
	chunks, err := store.Get(ctx, []string{oldID})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if chunk, ok := chunks[oldID]; !ok || chunk.Text != "Revenue grew 12% YoY.\n" {
		t.Errorf("previous version is no longer in the doc store after a failed re-ingest")
	}

	// The next attempt, with the backend healthy again, supersedes cleanly.
	if n := mustIngest(t, p, revised); n != 1 {
		t.Fatalf("retry indexed %d chunks, want 1", n)
	}
	chunks, err = store.Get(ctx, []string{oldID})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := chunks[oldID]; ok {
		t.Errorf("superseded chunk %s survived the successful retry", oldID)
	}
}

func TestDeleteDocumentRemovesAllDerivedState(t *testing.T) {
	p, index, store := newTestIndexing(t, nil)
	ctx := context.Background()

	doc := testDocument("10-K-2023", schema.SourceFiling,
		"Revenue grew 12% YoY.\nOperating margin expanded to 21%.\n")
	mustIngest(t, p, doc)

	if err := p.DeleteDocument(ctx, doc.DocID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	count, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("index holds %d entries after delete, want 0", count)
	}
	ids, err := store.DeleteByDoc(ctx, doc.DocID)
	if err != nil {
		t.Fatalf("DeleteByDoc: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("doc store still held %d chunks after delete", len(ids))
	}

	// Deleting an unknown document is a no-op.
	if err := p.DeleteDocument(ctx, "never-ingested"); err != nil {
		t.Errorf("DeleteDocument on an unknown id: %v", err)
	}
}

func TestIngestBatchStopsAtFirstFailure(t *testing.T) {
	p, _, _ := newTestIndexing(t, nil)
	ctx := context.Background()

	docs := []*schema.Document{
		testDocument("d1", schema.SourceFiling, "Revenue grew 12% YoY.\n"),
		{DocID: "", RawText: "broken"},
		testDocument("d3", schema.SourceFiling, "Never reached.\n"),
	}
	total, err := p.IngestBatch(ctx, docs)
	if err == nil {
		t.Fatal("expected the batch to fail on the invalid document")
	}
	if total != 1 {
		t.Errorf("batch reported %d chunks before failing, want 1", total)
	}
}
