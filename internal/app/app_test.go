package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/embeddings"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Qdrant.LocalPath = filepath.Join(t.TempDir(), "app.db")
	cfg.Embeddings.Local.Dimensions = 64
	return cfg
}

func TestNewFromConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.Qdrant.CollectionName = "memories"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 64, a.Provider.VectorSize())
	assert.Equal(t, "local-hash-ngram", a.Provider.VectorName())
	assert.IsType(t, &embeddings.InstrumentedProvider{}, a.Provider)
	assert.IsType(t, &store.SQLite{}, a.Store)
	assert.Equal(t, "memories", a.Connector.DefaultCollection())

	ctx := context.Background()
	require.NoError(t, a.Connector.Store(ctx, connector.Entry{Content: "remember the milk"}, ""))
	entries, err := a.Connector.Search(ctx, "remember the milk", connector.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remember the milk", entries[0].Content)
}

func TestNewProviderSelection(t *testing.T) {
	custom, err := embeddings.NewLocalProvider("custom", 8)
	require.NoError(t, err)

	t.Run("both", func(t *testing.T) {
		_, err := New(context.Background(), localConfig(t), WithEmbeddingProvider(custom))
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("neither", func(t *testing.T) {
		cfg := localConfig(t)
		cfg.Embeddings.Provider = ""
		_, err := New(context.Background(), cfg)
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("instance", func(t *testing.T) {
		cfg := localConfig(t)
		cfg.Embeddings.Provider = ""
		a, err := New(context.Background(), cfg, WithEmbeddingProvider(custom))
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, "local-custom", a.Provider.VectorName())
		assert.Equal(t, 8, a.Provider.VectorSize())
	})
}

func TestNewWithMemoryCache(t *testing.T) {
	cfg := localConfig(t)
	cfg.Cache.Backend = "memory"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &embeddings.CachedProvider{}, a.Provider)
}

func TestNewWithStoreClient(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "injected.db"))
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Qdrant.URL = "http://unused:6333"

	a, err := New(context.Background(), cfg, WithStoreClient(st))
	require.NoError(t, err)
	defer a.Close()
	assert.Same(t, st, a.Store)
}

func TestFieldIndexes(t *testing.T) {
	assert.Nil(t, FieldIndexes(nil))

	got := FieldIndexes([]config.FilterableField{
		{Name: "color", FieldType: "keyword", Condition: "=="},
		{Name: "year", FieldType: "integer"},
		{Name: "price", FieldType: "float", Condition: "<="},
		{Name: "public", FieldType: "boolean"},
	})
	assert.Equal(t, []connector.FieldIndex{
		{Key: "metadata.color", Type: store.FieldKeyword},
		{Key: "metadata.year", Type: store.FieldInteger},
		{Key: "metadata.price", Type: store.FieldFloat},
		{Key: "metadata.public", Type: store.FieldBool},
	}, got)
}
