package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/fs"
	"github.com/nickcecere/qdrant-mcp/internal/indexer"
	"github.com/nickcecere/qdrant-mcp/internal/ui"
	"github.com/nickcecere/qdrant-mcp/internal/watcher"
)

var (
	indexCollection string
	indexIgnore     []string
	indexHidden     bool
	indexDryRun     bool
	indexReplace    bool
	indexWatch      bool
)

// indexCmd loads a directory into a collection.
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Store the files of a directory as searchable chunks",
	Long: `Walk a directory (or the current directory), split every text file into
overlapping line ranges and store each range as an entry. Entries carry
filePath, startLine, endLine, language and contentHash metadata, so find
results point back at the source.

.gitignore and the configured ignore patterns are honoured; binary and
oversized files are skipped. Entries are always added, so indexing the same
directory twice stores its chunks twice unless --replace is given.

Examples:
  # Index the current directory into the configured collection
  qdrant-mcp index

  # Index ./src into the "code" collection
  qdrant-mcp index ./src --collection code

  # Re-index without duplicating, then follow changes
  qdrant-mcp index --replace --watch

  # Preview what would be indexed
  qdrant-mcp index --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "target collection (defaults to qdrant.collection_name, then the directory name)")
	indexCmd.Flags().StringSliceVarP(&indexIgnore, "ignore", "i", nil, "additional patterns to ignore")
	indexCmd.Flags().BoolVar(&indexHidden, "hidden", false, "include dot files and directories")
	indexCmd.Flags().BoolVarP(&indexDryRun, "dry-run", "d", false, "preview without storing")
	indexCmd.Flags().BoolVar(&indexReplace, "replace", false, "delete the earlier chunks of each file first")
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "keep running and re-index files as they change")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	collection := indexCollection
	if collection == "" {
		collection = cfg.Qdrant.CollectionName
	}
	if collection == "" {
		collection = filepath.Base(absPath)
	}

	log.Debug("Starting index", "path", absPath, "collection", collection, "dry-run", indexDryRun)

	out := cmd.OutOrStdout()
	if indexDryRun {
		return runDryRun(cmd, out, absPath)
	}
	if cfg.Qdrant.ReadOnly {
		return fmt.Errorf("qdrant.read_only is set, refusing to index")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(out, ui.Header.Render("Indexing into "+collection))
	fmt.Fprintf(out, "Path:     %s\n", absPath)
	fmt.Fprintf(out, "Provider: %s (%s)\n\n", cfg.Embeddings.Provider, a.Connector.Provider().VectorName())

	errOut := cmd.ErrOrStderr()
	lastUpdate := time.Now()
	idx := indexer.New(a.Connector, cfg)
	opts := indexer.Options{
		Path:           absPath,
		Collection:     collection,
		IgnorePatterns: indexIgnore,
		IncludeHidden:  indexHidden,
		Replace:        indexReplace,
		OnProgress: func(p indexer.Progress) {
			if time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()
			fmt.Fprintf(errOut, "\r\033[KFiles: %d | Chunks: %d | %s", p.Files, p.Chunks, truncatePath(p.CurrentFile, 40))
		},
	}
	progress, err := idx.Index(ctx, opts)
	fmt.Fprint(errOut, "\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintln(out, ui.Success.Render("Indexing complete!"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Files:    %d\n", progress.Files)
	fmt.Fprintf(out, "  Skipped:  %d\n", progress.SkippedFiles)
	fmt.Fprintf(out, "  Chunks:   %d\n", progress.Chunks)
	fmt.Fprintf(out, "  Duration: %s\n", time.Since(progress.StartTime).Round(time.Millisecond))

	if !indexWatch {
		return nil
	}
	return watch(ctx, out, idx, opts)
}

// watch re-indexes changed files until ctx is cancelled.
func watch(ctx context.Context, out io.Writer, idx *indexer.Indexer, opts indexer.Options) error {
	w, err := watcher.New(idx, opts,
		watcher.WithDebounceTime(time.Second),
		watcher.WithEventCallback(func(event, relPath string) {
			switch event {
			case watcher.EventIndex:
				fmt.Fprintf(out, "%s %s\n", ui.Success.Render("indexed"), relPath)
			case watcher.EventRemove:
				fmt.Fprintf(out, "%s %s\n", ui.Warning.Render("removed"), relPath)
			default:
				fmt.Fprintf(out, "%s %s\n", ui.Error.Render("failed "), relPath)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Dim.Render("Watching for changes, press Ctrl+C to stop"))
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runDryRun shows what would be indexed without embedding anything.
func runDryRun(cmd *cobra.Command, out io.Writer, path string) error {
	fmt.Fprintln(out, ui.Header.Render("Dry Run - Preview"))
	fmt.Fprintf(out, "Path: %s\n\n", path)

	walker, err := fs.NewWalker(fs.WalkOptions{
		Root:           path,
		MaxFileSize:    int64(cfg.Indexing.MaxFileSize),
		MaxFileCount:   cfg.Indexing.MaxFileCount,
		IgnorePatterns: append(slices.Clone(cfg.Ignore), indexIgnore...),
		IncludeHidden:  indexHidden,
	})
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	chunker := fs.NewChunker(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap)
	byLang := make(map[string]int)
	var files []fs.File
	chunks := 0
	err = walker.Walk(cmd.Context(), func(f fs.File) error {
		lang := f.Language
		if lang == "" {
			lang = "other"
		}
		byLang[lang]++
		chunks += len(chunker.Chunk(f.Content))
		f.Content = ""
		files = append(files, f)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	stats := walker.Stats()

	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	slices.Sort(langs)

	fmt.Fprintln(out, "Files to index:")
	for _, lang := range langs {
		fmt.Fprintf(out, "  %-15s %d\n", lang+":", byLang[lang])
	}
	fmt.Fprintln(out, ui.HorizontalRule(30))
	fmt.Fprintf(out, "Total files:   %d\n", stats.Files)
	fmt.Fprintf(out, "Total size:    %s\n", formatBytes(stats.Bytes))
	fmt.Fprintf(out, "Chunks:        %d\n", chunks)
	fmt.Fprintf(out, "Skipped:       %d files\n", stats.Skipped)

	if len(files) > 0 {
		fmt.Fprintln(out, "\nFirst 10 files:")
		for i, f := range files {
			if i >= 10 {
				fmt.Fprintf(out, "  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Fprintf(out, "  %s (%s)\n", f.RelPath, formatBytes(f.Size))
		}
	}
	return nil
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
