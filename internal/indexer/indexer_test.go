package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/embeddings"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// countingProvider records the batch sizes it was asked to embed.
type countingProvider struct {
	embeddings.Provider
	mu      sync.Mutex
	batches []int
	fail    error
}

func (p *countingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.batches = append(p.batches, len(texts))
	p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	return p.Provider.EmbedDocuments(ctx, texts)
}

func setup(t *testing.T, batchSize int) (*Indexer, *connector.Connector, *countingProvider) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	local, err := embeddings.NewLocalProvider("hash-ngram", 256)
	require.NoError(t, err)
	provider := &countingProvider{Provider: local}

	conn := connector.New(st, provider, connector.Options{DefaultCollection: "code"})

	cfg := config.DefaultConfig()
	cfg.Indexing.ChunkSize = 4
	cfg.Indexing.ChunkOverlap = 1
	cfg.Indexing.BatchSize = batchSize
	return New(conn, cfg), conn, provider
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const goSource = `package payments

// Refund returns money to the customer card.
func Refund(amount int) error {
	return gateway.Refund(amount)
}
`

func TestIndex(t *testing.T) {
	idx, conn, _ := setup(t, 10)
	root := writeFiles(t, map[string]string{
		"payments/refund.go": goSource,
		"README.md":          "# Shop\n\nA small shop.\n",
		"empty.txt":          "\n\n",
		"node_modules/x.js":  "ignored()\n",
	})

	ctx := context.Background()
	var reports []Progress
	progress, err := idx.Index(ctx, Options{
		Path:       root,
		OnProgress: func(p Progress) { reports = append(reports, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, progress.Files)
	assert.Equal(t, 1, progress.SkippedFiles)
	// refund.go has 6 lines: [1,4] and [4,6]; README.md has 3 lines: [1,3].
	assert.Equal(t, 3, progress.Chunks)
	assert.Equal(t, 1, progress.Batches)
	require.Len(t, reports, 1)

	count, err := conn.CountPoints(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	entries, err := conn.Search(ctx, "refund money to the customer", connector.SearchOptions{
		Limit:  5,
		Filter: &store.Filter{Must: []store.Condition{store.MatchValue(connector.MetadataField(KeyLanguage), "go")}},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "payments/refund.go", e.Metadata[KeyFilePath])
		assert.NotEmpty(t, e.Metadata[KeyContentHash])
	}

	first := entries[0]
	if !strings.HasPrefix(first.Content, "package payments") {
		first = entries[1]
	}
	assert.EqualValues(t, 1, first.Metadata[KeyStartLine])
	assert.EqualValues(t, 4, first.Metadata[KeyEndLine])
}

func TestIndexBatches(t *testing.T) {
	idx, _, provider := setup(t, 2)
	root := writeFiles(t, map[string]string{
		"a.txt": "1\n2\n3\n4\n5\n6\n7\n",
		"b.txt": "one\n",
	})

	progress, err := idx.Index(context.Background(), Options{Path: root, Collection: "notes"})
	require.NoError(t, err)

	// a.txt: [1,4] [4,7]; b.txt: [1,1].
	assert.Equal(t, 3, progress.Chunks)
	assert.Equal(t, 2, progress.Batches)
	assert.Equal(t, []int{2, 1}, provider.batches)
}

func TestIndexExtraIgnorePatterns(t *testing.T) {
	idx, _, _ := setup(t, 10)
	root := writeFiles(t, map[string]string{
		"keep.go":     "package keep\n",
		"gen/skip.go": "package gen\n",
	})

	progress, err := idx.Index(context.Background(), Options{Path: root, IgnorePatterns: []string{"gen/"}})
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Files)
}

func TestIndexStoreError(t *testing.T) {
	idx, _, provider := setup(t, 10)
	provider.fail = errors.New("embedding backend down")
	root := writeFiles(t, map[string]string{"a.txt": "hello\n"})

	_, err := idx.Index(context.Background(), Options{Path: root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding backend down")
	assert.Contains(t, err.Error(), "a.txt")
}

func TestIndexMissingPath(t *testing.T) {
	idx, _, _ := setup(t, 10)
	_, err := idx.Index(context.Background(), Options{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestIndexCancelled(t *testing.T) {
	idx, _, _ := setup(t, 10)
	root := writeFiles(t, map[string]string{"a.txt": "hello\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Index(ctx, Options{Path: root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexReplace(t *testing.T) {
	idx, conn, _ := setup(t, 10)
	root := writeFiles(t, map[string]string{"a.txt": "1\n2\n3\n4\n5\n"})
	ctx := context.Background()

	_, err := idx.Index(ctx, Options{Path: root})
	require.NoError(t, err)
	_, err = idx.Index(ctx, Options{Path: root})
	require.NoError(t, err)
	n, err := conn.CountPoints(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n, "plain re-index appends")

	_, err = idx.Index(ctx, Options{Path: root, Replace: true})
	require.NoError(t, err)
	n, err = conn.CountPoints(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestSyncFile(t *testing.T) {
	idx, conn, _ := setup(t, 10)
	root := writeFiles(t, map[string]string{"notes/a.md": "# A\n\nfirst\n"})
	ctx := context.Background()

	w, err := idx.Walker(Options{Path: root})
	require.NoError(t, err)
	path := filepath.Join(root, "notes", "a.md")

	n, err := idx.SyncFile(ctx, w, path, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, os.WriteFile(path, []byte("1\n2\n3\n4\n5\n6\n7\n"), 0o644))
	n, err = idx.SyncFile(ctx, w, path, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := conn.CountPoints(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	require.NoError(t, os.Remove(path))
	n, err = idx.SyncFile(ctx, w, path, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err = conn.CountPoints(ctx, "code")
	require.NoError(t, err)
	assert.Zero(t, count)
}
