// Package indexer loads a directory tree into a collection as line-range
// chunks, so find results point back at files.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/fs"
	"github.com/nickcecere/qdrant-mcp/internal/store"
)

// Metadata keys attached to every indexed chunk.
const (
	KeyFilePath    = "filePath"
	KeyStartLine   = "startLine"
	KeyEndLine     = "endLine"
	KeyLanguage    = "language"
	KeyContentHash = "contentHash"
)

// Progress tracks an indexing run.
type Progress struct {
	Files        int
	SkippedFiles int
	Chunks       int
	Batches      int
	StartTime    time.Time
	CurrentFile  string
}

// ProgressFunc is called after each stored batch.
type ProgressFunc func(Progress)

// Options configures one run.
type Options struct {
	// Path is the directory to index.
	Path string

	// Collection receives the chunks. Empty means the connector default.
	Collection string

	// IgnorePatterns are added to the configured ones.
	IgnorePatterns []string

	// IncludeHidden indexes dot files and directories.
	IncludeHidden bool

	// Replace deletes the earlier chunks of every indexed file first, so
	// re-indexing does not duplicate them.
	Replace bool

	OnProgress ProgressFunc
}

// Indexer stores chunks of files through a connector.
type Indexer struct {
	conn    *connector.Connector
	cfg     config.IndexingConfig
	ignore  []string
	chunker *fs.Chunker
}

// New creates an indexer using the indexing and ignore settings of cfg.
func New(conn *connector.Connector, cfg *config.Config) *Indexer {
	return &Indexer{
		conn:    conn,
		cfg:     cfg.Indexing,
		ignore:  cfg.Ignore,
		chunker: fs.NewChunker(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap),
	}
}

// Index walks opts.Path and stores every chunk. Chunks are sent in batches
// of the configured size; a failed batch aborts the run.
func (idx *Indexer) Index(ctx context.Context, opts Options) (Progress, error) {
	progress := Progress{StartTime: time.Now()}

	walker, err := idx.Walker(opts)
	if err != nil {
		return progress, err
	}

	batchSize := idx.batchSize()

	pending := make([]connector.Entry, 0, batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := idx.conn.StoreBatch(ctx, pending, opts.Collection); err != nil {
			return fmt.Errorf("failed to store chunks of %s: %w", progress.CurrentFile, err)
		}
		progress.Chunks += len(pending)
		progress.Batches++
		pending = pending[:0]
		if opts.OnProgress != nil {
			opts.OnProgress(progress)
		}
		return nil
	}

	log.Info("Indexing directory", "path", walker.Root(), "collection", opts.Collection)

	err = walker.Walk(ctx, func(f fs.File) error {
		progress.CurrentFile = f.RelPath
		chunks := idx.chunker.Chunk(f.Content)
		if len(chunks) == 0 {
			log.Debug("No chunks generated", "path", f.RelPath)
			progress.SkippedFiles++
			return nil
		}
		progress.Files++

		if opts.Replace {
			if err := idx.RemoveFile(ctx, opts.Collection, f.RelPath); err != nil {
				return err
			}
		}
		for _, c := range chunks {
			pending = append(pending, connector.Entry{
				Content:  c.Content,
				Metadata: chunkMetadata(f, c),
			})
			if len(pending) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		log.Debug("Chunked file", "path", f.RelPath, "chunks", len(chunks), "language", f.Language)
		return nil
	})
	if err == nil {
		err = flush()
	}
	progress.SkippedFiles += walker.Stats().Skipped
	if err != nil {
		return progress, err
	}

	log.Info("Indexing complete",
		"files", progress.Files,
		"skipped", progress.SkippedFiles,
		"chunks", progress.Chunks,
		"duration", time.Since(progress.StartTime).Round(time.Millisecond),
	)
	return progress, nil
}

// Walker returns the file walker Index uses for opts.
func (idx *Indexer) Walker(opts Options) (*fs.Walker, error) {
	w, err := fs.NewWalker(fs.WalkOptions{
		Root:           opts.Path,
		MaxFileSize:    int64(idx.cfg.MaxFileSize),
		MaxFileCount:   idx.cfg.MaxFileCount,
		IgnorePatterns: append(append([]string{}, idx.ignore...), opts.IgnorePatterns...),
		IncludeHidden:  opts.IncludeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file walker: %w", err)
	}
	return w, nil
}

// SyncFile replaces the chunks of the file at path. A file that is gone,
// ignored or binary only loses its earlier chunks. It returns the number of
// chunks stored.
func (idx *Indexer) SyncFile(ctx context.Context, w *fs.Walker, path, collection string) (int, error) {
	f, ok, err := w.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	rel := f.RelPath
	if rel == "" {
		r, relErr := filepath.Rel(w.Root(), path)
		if relErr != nil {
			return 0, relErr
		}
		rel = filepath.ToSlash(r)
	}
	if err := idx.RemoveFile(ctx, collection, rel); err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	chunks := idx.chunker.Chunk(f.Content)
	entries := make([]connector.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = connector.Entry{Content: c.Content, Metadata: chunkMetadata(f, c)}
	}
	for start := 0; start < len(entries); start += idx.batchSize() {
		end := min(start+idx.batchSize(), len(entries))
		if err := idx.conn.StoreBatch(ctx, entries[start:end], collection); err != nil {
			return start, fmt.Errorf("failed to store chunks of %s: %w", rel, err)
		}
	}
	return len(entries), nil
}

// RemoveFile deletes every chunk of the file rel from the collection.
func (idx *Indexer) RemoveFile(ctx context.Context, collection, rel string) error {
	filter := &store.Filter{Must: []store.Condition{
		store.MatchValue(connector.MetadataField(KeyFilePath), rel),
	}}
	if err := idx.conn.Delete(ctx, collection, filter); err != nil {
		return fmt.Errorf("failed to remove chunks of %s: %w", rel, err)
	}
	return nil
}

func (idx *Indexer) batchSize() int {
	if idx.cfg.BatchSize <= 0 {
		return config.DefaultBatchSize
	}
	return idx.cfg.BatchSize
}

func chunkMetadata(f fs.File, c fs.Chunk) map[string]any {
	md := map[string]any{
		KeyFilePath:    f.RelPath,
		KeyStartLine:   c.StartLine,
		KeyEndLine:     c.EndLine,
		KeyContentHash: f.Hash,
	}
	if f.Language != "" {
		md[KeyLanguage] = f.Language
	}
	return md
}
