package embeddings

import (
	"context"
	"testing"
)

func TestStaticEmbedderIsDeterministic(t *testing.T) {
	m := NewStaticEmbedder(32)
	ctx := context.Background()

	a, err := m.Embed(ctx, "Revenue grew 12% YoY")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := m.Embed(ctx, "Revenue grew 12% YoY")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("vector length = %d, want 32", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text produced different vectors at %d", i)
		}
	}
}

func TestStaticEmbedderBucketsAllTokens(t *testing.T) {
	// Tokens with hashes above MaxInt32 must still land in a bucket; the
	// total mass equals the token count regardless of platform int width.
	m := NewStaticEmbedder(8)
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"

	vec, err := m.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	var total float32
	for _, v := range vec {
		if v < 0 {
			t.Fatalf("negative bucket value %v", v)
		}
		total += v
	}
	if total != 10 {
		t.Errorf("bucket mass = %v, want one unit per token (10)", total)
	}
}

func TestStaticEmbedderBatchMatchesSingle(t *testing.T) {
	m := NewStaticEmbedder(16)
	ctx := context.Background()
	texts := []string{"inflation was 3.2% in Q1", "revenue grew 12%", ""}

	batch, err := m.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("EmbedBatch() returned %d vectors, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		single, err := m.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		for j := range single {
			if batch[i][j] != single[j] {
				t.Errorf("EmbedBatch()[%d] differs from Embed(%q)", i, text)
				break
			}
		}
	}
}
