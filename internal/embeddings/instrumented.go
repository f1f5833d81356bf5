package embeddings

import (
	"context"
	"time"

	"github.com/nickcecere/qdrant-mcp/internal/metrics"
)

// InstrumentedProvider records request counts and latency for an inner
// provider.
type InstrumentedProvider struct {
	inner Provider
}

// NewInstrumentedProvider wraps inner with Prometheus metrics.
func NewInstrumentedProvider(inner Provider) *InstrumentedProvider {
	return &InstrumentedProvider{inner: inner}
}

// EmbedDocuments embeds texts and records the call.
func (p *InstrumentedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := p.inner.EmbedDocuments(ctx, texts)
	p.observe("documents", len(texts), start, err)
	return vectors, err
}

// EmbedQuery embeds a single text and records the call.
func (p *InstrumentedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := p.inner.EmbedQuery(ctx, text)
	p.observe("query", 1, start, err)
	return vector, err
}

// VectorSize returns the inner provider's vector size.
func (p *InstrumentedProvider) VectorSize() int {
	return p.inner.VectorSize()
}

// VectorName returns the inner provider's vector name.
func (p *InstrumentedProvider) VectorName() string {
	return p.inner.VectorName()
}

func (p *InstrumentedProvider) observe(op string, texts int, start time.Time, err error) {
	name := p.inner.VectorName()
	metrics.EmbeddingRequestsTotal.WithLabelValues(name, op, metrics.Status(err)).Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	metrics.EmbeddingTextsTotal.WithLabelValues(name).Add(float64(texts))
}
