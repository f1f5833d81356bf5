// Package app assembles the embedding provider, the vector store and the
// connector from a configuration.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/qdrant-mcp/internal/cache"
	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/embeddings"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// App holds the long-lived components shared by every request.
type App struct {
	Config    *config.Config
	Provider  embeddings.Provider
	Store     store.Client
	Connector *connector.Connector

	kv cache.KV
}

// Option configures New.
type Option func(*options)

type options struct {
	provider embeddings.Provider
	client   store.Client
}

// WithEmbeddingProvider uses p instead of building a provider from
// embeddings.provider, which must then be empty.
func WithEmbeddingProvider(p embeddings.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithStoreClient uses c instead of opening the configured store.
func WithStoreClient(c store.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// New builds an App. Exactly one of embeddings.provider and
// WithEmbeddingProvider must be given.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch {
	case cfg.Embeddings.Provider != "" && o.provider != nil:
		return nil, fmt.Errorf("%w: embeddings.provider %q cannot be combined with a provider instance",
			config.ErrInvalid, cfg.Embeddings.Provider)
	case cfg.Embeddings.Provider == "" && o.provider == nil:
		return nil, fmt.Errorf("%w: either embeddings.provider or a provider instance is required", config.ErrInvalid)
	}

	provider := o.provider
	if provider == nil {
		p, err := embeddings.NewProvider(cfg.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		provider = p
	}
	provider = embeddings.NewInstrumentedProvider(provider)

	kv, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	if kv != nil {
		log.Debug("Caching embeddings", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)
		provider = embeddings.NewCachedProvider(provider, kv, cfg.Cache.TTL)
	}

	client := o.client
	if client == nil {
		url, localPath := cfg.StoreLocation()
		client, err = store.Open(ctx, url, cfg.Qdrant.APIKey, localPath)
		if err != nil {
			if kv != nil {
				kv.Close()
			}
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		if url != "" {
			log.Debug("Using remote store", "url", url)
		} else {
			log.Debug("Using local store", "path", localPath)
		}
	}

	conn := connector.New(client, provider, connector.Options{
		DefaultCollection: cfg.Qdrant.CollectionName,
		SearchLimit:       cfg.Qdrant.SearchLimit,
		ScoreThreshold:    cfg.Qdrant.ScoreThreshold,
		FieldIndexes:      FieldIndexes(cfg.Qdrant.FilterableFields),
	})

	return &App{
		Config:    cfg,
		Provider:  provider,
		Store:     client,
		Connector: conn,
		kv:        kv,
	}, nil
}

// Close releases the store and the cache.
func (a *App) Close() error {
	if a.kv != nil {
		a.kv.Close()
	}
	return a.Store.Close()
}

// FieldIndexes returns one payload index per filterable field.
func FieldIndexes(fields []config.FilterableField) []connector.FieldIndex {
	if len(fields) == 0 {
		return nil
	}
	out := make([]connector.FieldIndex, len(fields))
	for i, f := range fields {
		out[i] = connector.FieldIndex{
			Key:  connector.MetadataField(f.Name),
			Type: store.FieldType(f.FieldType),
		}
	}
	return out
}
