package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/qdrant-mcp/internal/cache"
	"github.com/nickcecere/qdrant-mcp/internal/metrics"
)

const cacheKeyPrefix = "qdrant-mcp:emb:"

// CachedProvider caches vectors of an inner provider in a key-value store.
// Cache failures degrade to calling the inner provider.
type CachedProvider struct {
	inner Provider
	kv    cache.KV
	ttl   time.Duration
}

// NewCachedProvider wraps inner with a cache.
func NewCachedProvider(inner Provider, kv cache.KV, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, kv: kv, ttl: ttl}
}

// EmbedDocuments returns cached vectors and embeds only the misses, in one
// inner call, keeping input order.
func (c *CachedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.get(ctx, text); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			out[i] = vec
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(vectors))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.put(ctx, texts[i], vectors[j])
	}
	return out, nil
}

// EmbedQuery embeds a single text through the cache.
func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(c.EmbedDocuments(ctx, []string{text}))
}

// VectorSize returns the inner provider's vector size.
func (c *CachedProvider) VectorSize() int {
	return c.inner.VectorSize()
}

// VectorName returns the inner provider's vector name.
func (c *CachedProvider) VectorName() string {
	return c.inner.VectorName()
}

// cacheKey includes the vector name so models never share entries.
func (c *CachedProvider) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.inner.VectorName() + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedProvider) get(ctx context.Context, text string) ([]float32, bool) {
	key := c.cacheKey(text)
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			log.Warn("Failed to get cached embedding", "key", key, "error", err)
		}
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil || len(vec) != c.inner.VectorSize() {
		log.Warn("Discarding malformed cached embedding", "key", key, "bytes", len(data))
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) put(ctx context.Context, text string, vec []float32) {
	key := c.cacheKey(text)
	if err := c.kv.Set(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
		log.Warn("Failed to cache embedding", "key", key, "error", err)
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
