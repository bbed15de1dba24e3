package docstore

import (
	"context"
	"testing"

	"finsight/internal/rag/schema"
)

func chunk(id, docID string) *schema.Chunk {
	return &schema.Chunk{ChunkID: id, DocID: docID, Text: "text for " + id}
}

func TestPutGet(t *testing.T) {
	s := NewInMemoryDocStore()
	ctx := context.Background()

	if err := s.Put(ctx, []*schema.Chunk{chunk("a", "doc-1"), chunk("b", "doc-1")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Get() returned %d chunks, want 2", len(got))
	}
	if got["a"].DocID != "doc-1" {
		t.Errorf("chunk a doc id = %q, want doc-1", got["a"].DocID)
	}
	if _, ok := got["missing"]; ok {
		t.Errorf("Get() returned a chunk for an unknown id")
	}
}

func TestDeleteByDoc(t *testing.T) {
	s := NewInMemoryDocStore()
	ctx := context.Background()

	if err := s.Put(ctx, []*schema.Chunk{chunk("a", "doc-1"), chunk("b", "doc-1"), chunk("c", "doc-2")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	ids, err := s.DeleteByDoc(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDoc() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("DeleteByDoc() returned %d ids, want 2", len(ids))
	}

	got, err := s.Get(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("store has %d chunks after delete, want 1", len(got))
	}
	if _, ok := got["c"]; !ok {
		t.Errorf("chunk of another document was deleted")
	}

	// Deleting an absent document is a no-op.
	ids, err = s.DeleteByDoc(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDoc() of absent doc error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("DeleteByDoc() of absent doc returned ids: %v", ids)
	}
}

func TestPutReplacesExistingChunk(t *testing.T) {
	s := NewInMemoryDocStore()
	ctx := context.Background()

	if err := s.Put(ctx, []*schema.Chunk{chunk("a", "doc-1")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	updated := chunk("a", "doc-1")
	updated.Text = "updated text"
	if err := s.Put(ctx, []*schema.Chunk{updated}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["a"].Text != "updated text" {
		t.Errorf("chunk text = %q, want updated text", got["a"].Text)
	}
}
