// Package watcher keeps an indexed directory in sync with its collection.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/qdrant-mcp/internal/fs"
	"github.com/nickcecere/qdrant-mcp/internal/indexer"
)

// Event kinds passed to the event callback.
const (
	EventIndex  = "index"
	EventRemove = "remove"
	EventError  = "error"
)

// Watcher re-indexes files of a directory as they change.
type Watcher struct {
	idx        *indexer.Indexer
	walker     *fs.Walker
	collection string

	// pending holds changed paths until the next debounce tick
	pending      map[string]struct{}
	pendingMu    sync.Mutex
	debounceTime time.Duration

	onEvent func(event, relPath string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long changes are batched before re-indexing.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback run after each file is processed.
func WithEventCallback(fn func(event, relPath string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a watcher for the directory and collection of opts, applying
// the same ignore rules as indexing.
func New(idx *indexer.Indexer, opts indexer.Options, options ...Option) (*Watcher, error) {
	walker, err := idx.Walker(opts)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		idx:          idx,
		walker:       walker,
		collection:   opts.Collection,
		pending:      make(map[string]struct{}),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {},
	}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

// Start watches until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher, w.walker.Root()); err != nil {
		return err
	}

	log.Info("Watching for file changes", "root", w.walker.Root(), "collection", w.collection)

	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			w.flush(ctx)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories watches dir and every directory below it that the walk
// rules keep.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && w.walker.Ignored(rel, true) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.walker.Ignored(rel, true) {
				if err := w.addDirectories(watcher, event.Name); err != nil {
					log.Debug("Failed to watch new directory", "path", rel, "error", err)
				}
			}
			return
		}
	}
	if event.Op == fsnotify.Chmod || w.walker.Ignored(rel, false) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

// flush re-indexes every pending path.
func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := w.pending
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for path := range paths {
		if ctx.Err() != nil {
			return
		}
		rel, _ := w.rel(path)

		n, err := w.idx.SyncFile(ctx, w.walker, path, w.collection)
		switch {
		case err != nil:
			log.Error("Failed to re-index file", "path", rel, "error", err)
			w.onEvent(EventError, rel)
		case n == 0:
			log.Info("Removed from index", "file", rel)
			w.onEvent(EventRemove, rel)
		default:
			log.Info("Indexed", "file", rel, "chunks", n)
			w.onEvent(EventIndex, rel)
		}
	}
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.walker.Root(), path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
