package connector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// memStore is an in-memory store.Client.
type memStore struct {
	mu          sync.Mutex
	collections map[string]*memCollection

	// existsHook runs after CollectionExists has read the collection map.
	existsHook func()
	// failWith makes every call return this error.
	failWith error

	infoCalls    int
	createCalls  int
	indexes      map[string][]string
	queries      []store.QueryRequest
	upsertCalls  int
	lastUpserted []store.Point
}

type memCollection struct {
	vectors store.VectorsConfig
	points  []store.Point
}

func newMemStore() *memStore {
	return &memStore{
		collections: make(map[string]*memCollection),
		indexes:     make(map[string][]string),
	}
}

func (m *memStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	err := m.failWith
	_, ok := m.collections[name]
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	if m.existsHook != nil {
		m.existsHook()
	}
	return ok, nil
}

func (m *memStore) CreateCollection(ctx context.Context, req store.CreateCollectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if _, ok := m.collections[req.Name]; ok {
		return fmt.Errorf("%w: %s", store.ErrCollectionExists, req.Name)
	}
	m.collections[req.Name] = &memCollection{vectors: req.Vectors}
	return nil
}

func (m *memStore) CreatePayloadIndex(ctx context.Context, collection, field string, t store.FieldType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[collection] = append(m.indexes[collection], field+":"+string(t))
	return nil
}

func (m *memStore) CollectionInfo(ctx context.Context, name string) (*store.CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	return &store.CollectionInfo{Name: name, Vectors: c.vectors, PointsCount: uint64(len(c.points))}, nil
}

func (m *memStore) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStore) Upsert(ctx context.Context, collection string, points []store.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrCollectionNotFound, collection)
	}
	m.upsertCalls++
	m.lastUpserted = points
	c.points = append(c.points, points...)
	return nil
}

func (m *memStore) Query(ctx context.Context, req store.QueryRequest) ([]store.ScoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.queries = append(m.queries, req)
	c, ok := m.collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, req.Collection)
	}

	var hits []store.ScoredPoint
	for _, p := range c.points {
		v := p.Vector.Dense
		if req.Using != "" {
			v = p.Vector.Named[req.Using]
		}
		if v == nil || !req.Filter.Matches(p.Payload) {
			continue
		}
		score := cosine(req.Vector, v)
		if req.ScoreThreshold != nil && score < *req.ScoreThreshold {
			continue
		}
		hits = append(hits, store.ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func (m *memStore) Count(ctx context.Context, collection string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, collection)
	}
	return uint64(len(c.points)), nil
}

func (m *memStore) Delete(ctx context.Context, collection string, filter *store.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrCollectionNotFound, collection)
	}
	kept := c.points[:0]
	for _, p := range c.points {
		if !filter.Matches(p.Payload) {
			kept = append(kept, p)
		}
	}
	c.points = kept
	return nil
}

func (m *memStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// conceptProvider embeds text onto a few topic axes so related wording
// lands close together even without shared words.
type conceptProvider struct {
	mu    sync.Mutex
	calls int
}

var concepts = [][]string{
	{"python", "programming", "coding", "code", "language", "languages", "golang", "software"},
	{"vector", "vectors", "database", "databases", "embedding", "embeddings", "index"},
	{"machine", "learning", "model", "models", "neural", "training"},
}

func (p *conceptProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *conceptProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

func (p *conceptProvider) embed(text string) []float32 {
	v := make([]float32, len(concepts)+1)
	v[len(concepts)] = 0.1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for axis, words := range concepts {
			for _, w := range words {
				if strings.Trim(word, ".,!?") == w {
					v[axis]++
				}
			}
		}
	}
	return v
}

func (p *conceptProvider) VectorSize() int    { return len(concepts) + 1 }
func (p *conceptProvider) VectorName() string { return "concept-test" }
