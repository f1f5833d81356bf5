// Package connector stores and searches text entries in a vector store,
// embedding them with a pluggable provider.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/qdrant-mcp/internal/embeddings"
	"github.com/nickcecere/qdrant-mcp/internal/metrics"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// Payload keys written by Store.
const (
	DocumentKey = "document"
	MetadataKey = "metadata"
)

// DefaultSearchLimit is used when neither the call nor the connector set a
// limit.
const DefaultSearchLimit = 10

var (
	// ErrNoCollection is returned when a call names no collection and the
	// connector has no default.
	ErrNoCollection = errors.New("no collection name given and no default collection configured")

	// ErrEmptyContent is returned when storing an entry without content.
	ErrEmptyContent = errors.New("entry content is empty")
)

// Layout is how a collection addresses its vectors.
type Layout string

const (
	LayoutNamed   Layout = "named"
	LayoutUnnamed Layout = "unnamed"
)

// Entry is a stored or retrieved unit of content. Score is set only on
// search results.
type Entry struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    *float64       `json:"score,omitempty"`
}

// FieldIndex is a payload index created with every new collection.
type FieldIndex struct {
	Key  string
	Type store.FieldType
}

// MetadataField returns the payload key of a metadata attribute.
func MetadataField(name string) string {
	return MetadataKey + "." + name
}

// Options configures a Connector.
type Options struct {
	// DefaultCollection is used when a call names no collection.
	DefaultCollection string
	// SearchLimit is the result count when a search sets none.
	SearchLimit int
	// ScoreThreshold is the minimum score when a search sets none.
	ScoreThreshold *float64
	FieldIndexes   []FieldIndex
}

// Connector owns the store client and the per-collection layout cache.
type Connector struct {
	client   store.Client
	provider embeddings.Provider
	opts     Options

	mu      sync.RWMutex
	layouts map[string]Layout
}

// New creates a Connector.
func New(client store.Client, provider embeddings.Provider, opts Options) *Connector {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	return &Connector{
		client:   client,
		provider: provider,
		opts:     opts,
		layouts:  make(map[string]Layout),
	}
}

// DefaultCollection returns the configured default collection, if any.
func (c *Connector) DefaultCollection() string {
	return c.opts.DefaultCollection
}

// Provider returns the embedding provider.
func (c *Connector) Provider() embeddings.Provider {
	return c.provider
}

func (c *Connector) target(collection string) (string, error) {
	if collection != "" {
		return collection, nil
	}
	if c.opts.DefaultCollection != "" {
		return c.opts.DefaultCollection, nil
	}
	return "", ErrNoCollection
}

// EnsureCollection creates the collection with a named vector for the
// provider, plus the configured payload indexes, unless it exists. Losing a
// creation race to another caller is not an error.
func (c *Connector) EnsureCollection(ctx context.Context, name string) error {
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Info("Creating collection", "name", name, "vector", c.provider.VectorName(), "size", c.provider.VectorSize())
	err = c.client.CreateCollection(ctx, store.CreateCollectionRequest{
		Name: name,
		Vectors: store.VectorsConfig{Named: map[string]store.VectorParams{
			c.provider.VectorName(): {Size: c.provider.VectorSize(), Distance: store.DistanceCosine},
		}},
	})
	if errors.Is(err, store.ErrCollectionExists) {
		log.Debug("Collection created concurrently", "name", name)
		return nil
	}
	if err != nil {
		return err
	}

	for _, idx := range c.opts.FieldIndexes {
		if err := c.client.CreatePayloadIndex(ctx, name, idx.Key, idx.Type); err != nil {
			return err
		}
	}
	return nil
}

// ResolveVectorLayout reports whether a collection uses named or unnamed
// vectors. Results for existing collections are cached; a missing
// collection reports LayoutNamed, the layout EnsureCollection creates, and
// is not cached.
func (c *Connector) ResolveVectorLayout(ctx context.Context, name string) (Layout, error) {
	c.mu.RLock()
	layout, ok := c.layouts[name]
	c.mu.RUnlock()
	if ok {
		return layout, nil
	}

	info, err := c.client.CollectionInfo(ctx, name)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return LayoutNamed, nil
	}
	if err != nil {
		return "", err
	}

	layout = LayoutUnnamed
	if info.Vectors.IsNamed() {
		layout = LayoutNamed
	}

	c.mu.Lock()
	c.layouts[name] = layout
	c.mu.Unlock()

	log.Debug("Resolved vector layout", "collection", name, "layout", layout)
	return layout, nil
}

// InvalidateLayout forgets the cached layout of a collection, for use after
// it was deleted and recreated outside this process.
func (c *Connector) InvalidateLayout(name string) {
	c.mu.Lock()
	delete(c.layouts, name)
	c.mu.Unlock()
}

// Store embeds and inserts one entry as a new point.
func (c *Connector) Store(ctx context.Context, entry Entry, collection string) error {
	return c.StoreBatch(ctx, []Entry{entry}, collection)
}

// StoreBatch embeds entries in one provider call and inserts them as new
// points in one upsert. Points are never updated.
func (c *Connector) StoreBatch(ctx context.Context, entries []Entry, collection string) error {
	name, err := c.target(collection)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		if e.Content == "" {
			return ErrEmptyContent
		}
		texts[i] = e.Content
	}

	if err := c.EnsureCollection(ctx, name); err != nil {
		return err
	}

	vectors, err := c.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(entries) {
		return fmt.Errorf("expected %d embeddings, got %d", len(entries), len(vectors))
	}

	layout, err := c.ResolveVectorLayout(ctx, name)
	if err != nil {
		return err
	}

	points := make([]store.Point, len(entries))
	for i, e := range entries {
		points[i] = store.Point{
			ID:      uuid.NewString(),
			Vector:  c.vectors(layout, vectors[i]),
			Payload: payload(e),
		}
	}

	log.Debug("Storing entries", "collection", name, "count", len(points), "layout", layout)
	return c.client.Upsert(ctx, name, points)
}

func (c *Connector) vectors(layout Layout, v []float32) store.Vectors {
	if layout == LayoutUnnamed {
		return store.DenseVector(v)
	}
	return store.NamedVector(c.provider.VectorName(), v)
}

// payload builds the stored payload. Metadata lives under its own key so it
// cannot overwrite the document; nil metadata is omitted.
func payload(e Entry) map[string]any {
	p := map[string]any{DocumentKey: e.Content}
	if e.Metadata != nil {
		p[MetadataKey] = e.Metadata
	}
	return p
}

// SearchOptions configures a search. Zero values fall back to the
// connector's defaults.
type SearchOptions struct {
	Collection     string
	Limit          int
	Filter         *store.Filter
	ScoreThreshold *float64
}

// Search returns the entries most similar to query, best first. A missing
// collection yields an empty result.
func (c *Connector) Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, error) {
	name, err := c.target(opts.Collection)
	if err != nil {
		return nil, err
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}

	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Debug("Collection does not exist", "collection", name)
		return []Entry{}, nil
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	vector, err := c.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	layout, err := c.ResolveVectorLayout(ctx, name)
	if err != nil {
		return nil, err
	}

	req := store.QueryRequest{
		Collection:     name,
		Vector:         vector,
		Limit:          opts.Limit,
		Filter:         opts.Filter,
		ScoreThreshold: opts.ScoreThreshold,
	}
	if req.Limit <= 0 {
		req.Limit = c.opts.SearchLimit
	}
	if req.ScoreThreshold == nil {
		req.ScoreThreshold = c.opts.ScoreThreshold
	}
	if layout == LayoutNamed {
		req.Using = c.provider.VectorName()
	}

	log.Debug("Searching collection", "collection", name, "limit", req.Limit, "layout", layout)
	points, err := c.client.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(points))
	for _, p := range points {
		entry := normalize(p.Payload)
		score := p.Score
		entry.Score = &score
		entries = append(entries, entry)
	}

	metrics.SearchResultsTotal.Observe(float64(len(entries)))
	log.Debug("Search complete", "results", len(entries))
	return entries, nil
}

// Delete removes the entries matching filter. A missing collection is not
// an error.
func (c *Connector) Delete(ctx context.Context, collection string, filter *store.Filter) error {
	name, err := c.target(collection)
	if err != nil {
		return err
	}
	if filter.IsEmpty() {
		return fmt.Errorf("%w: delete needs a non-empty filter", store.ErrInvalidFilter)
	}

	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", name, err)
	}
	if !exists {
		return nil
	}
	log.Debug("Deleting entries", "collection", name)
	return c.client.Delete(ctx, name, filter)
}

// ListCollectionNames returns every collection in the store.
func (c *Connector) ListCollectionNames(ctx context.Context) ([]string, error) {
	return c.client.ListCollections(ctx)
}

// CountPoints returns the number of points in a collection.
func (c *Connector) CountPoints(ctx context.Context, collection string) (uint64, error) {
	name, err := c.target(collection)
	if err != nil {
		return 0, err
	}
	return c.client.Count(ctx, name)
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
