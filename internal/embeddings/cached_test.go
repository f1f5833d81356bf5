package embeddings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/qdrant-mcp/internal/cache"
	"github.com/nickcecere/qdrant-mcp/internal/metrics"
)

// countingProvider records every batch it is asked to embed.
type countingProvider struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	dims  int
}

func (c *countingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), texts...))
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = fakeEmbedding(text, c.dims)
	}
	return out, nil
}

func (c *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return first(c.EmbedDocuments(ctx, []string{text}))
}

func (c *countingProvider) VectorSize() int    { return c.dims }
func (c *countingProvider) VectorName() string { return "counting" }

// brokenKV fails every operation.
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenKV) Close() {}

func TestCachedProviderEmbedsOnlyMisses(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := NewCachedProvider(inner, cache.NewMemory(0), time.Hour)
	ctx := context.Background()

	hitsBefore := testutil.ToFloat64(metrics.EmbeddingCacheTotal.WithLabelValues("hit"))

	initial, err := p.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)

	second, err := p.EmbedDocuments(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"a", "b"}, inner.calls[0])
	assert.Equal(t, []string{"c"}, inner.calls[1])

	assert.Equal(t, initial[1], second[0])
	assert.Equal(t, fakeEmbedding("c", 4), second[1])
	assert.Equal(t, initial[0], second[2])

	hits := testutil.ToFloat64(metrics.EmbeddingCacheTotal.WithLabelValues("hit")) - hitsBefore
	assert.Equal(t, 2.0, hits)
}

func TestCachedProviderQueryUsesCache(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := NewCachedProvider(inner, cache.NewMemory(0), 0)
	ctx := context.Background()

	v1, err := p.EmbedQuery(ctx, "hello")
	require.NoError(t, err)
	v2, err := p.EmbedQuery(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, inner.calls, 1)
	assert.Equal(t, "counting", p.VectorName())
	assert.Equal(t, 4, p.VectorSize())
}

func TestCachedProviderDiscardsWrongSize(t *testing.T) {
	inner := &countingProvider{dims: 4}
	kv := cache.NewMemory(0)
	p := NewCachedProvider(inner, kv, 0)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, p.cacheKey("x"), vectorToBytes([]float32{1, 2}), 0))

	v, err := p.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, fakeEmbedding("x", 4), v)
	assert.Len(t, inner.calls, 1)
}

func TestCachedProviderSurvivesBrokenCache(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := NewCachedProvider(inner, brokenKV{}, time.Minute)

	v, err := p.EmbedQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, fakeEmbedding("x", 4), v)
}

func TestCachedProviderPropagatesInnerError(t *testing.T) {
	inner := &countingProvider{dims: 4, err: &BackendError{Provider: "test", StatusCode: 503, Message: "down"}}
	p := NewCachedProvider(inner, cache.NewMemory(0), 0)

	_, err := p.EmbedDocuments(context.Background(), []string{"x"})
	var backendErr *BackendError
	assert.True(t, errors.As(err, &backendErr))
}

func TestCacheKeyDependsOnModel(t *testing.T) {
	a := NewCachedProvider(&countingProvider{dims: 4}, cache.NewMemory(0), 0)
	b := NewCachedProvider(mustLocal(t, 4), cache.NewMemory(0), 0)

	assert.NotEqual(t, a.cacheKey("same"), b.cacheKey("same"))
	assert.Equal(t, a.cacheKey("same"), a.cacheKey("same"))
}

func TestVectorBytesRoundTrip(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	got, err := bytesToVector(vectorToBytes(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = bytesToVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestInstrumentedProvider(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := NewInstrumentedProvider(inner)
	ctx := context.Background()

	okBefore := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("counting", "documents", "ok"))
	textsBefore := testutil.ToFloat64(metrics.EmbeddingTextsTotal.WithLabelValues("counting"))

	_, err := p.EmbedDocuments(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("counting", "documents", "ok"))-okBefore)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.EmbeddingTextsTotal.WithLabelValues("counting"))-textsBefore)

	inner.err = errors.New("boom")
	errBefore := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("counting", "query", "error"))
	_, err = p.EmbedQuery(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("counting", "query", "error"))-errBefore)
}

func mustLocal(t *testing.T, dims int) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider("hash-ngram", dims)
	require.NoError(t, err)
	return p
}
