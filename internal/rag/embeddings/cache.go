package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"finsight/internal/rag/interfaces"
	"finsight/pkg/logger"
)

// CachedEmbedder decorates an Embedder with a Redis cache keyed by a hash
// of the text. Cache failures are logged and fall through to the backend:
// the cache can only make embedding cheaper, never make it fail.
type CachedEmbedder struct {
	inner     interfaces.Embedder
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
	log       *logger.Logger
}

// NewCachedEmbedder wraps inner with a Redis cache. namespace separates
// cache entries of different models; ttl of zero means no expiry.
func NewCachedEmbedder(inner interfaces.Embedder, rdb *redis.Client, namespace string, ttl time.Duration, log *logger.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, rdb: rdb, namespace: namespace, ttl: ttl, log: log}
}

// Dimension returns the backend's fixed output vector length.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.namespace, hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) []float32 {
	data, err := c.rdb.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("embedding cache read failed")
		}
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) != c.inner.Dimension() {
		return nil
	}
	return vec
}

func (c *CachedEmbedder) store(ctx context.Context, text string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(text), data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("embedding cache write failed")
	}
}

// Embed returns the cached vector if present, otherwise embeds and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec := c.lookup(ctx, text); vec != nil {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and forwards only the misses to the
// backend in one batch, preserving input order in the result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if vec := c.lookup(ctx, t); vec != nil {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.store(ctx, texts[i], vecs[j])
	}
	return out, nil
}

var _ interfaces.Embedder = (*CachedEmbedder)(nil)
