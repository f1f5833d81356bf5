package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/mcp"
	"github.com/nickcecere/qdrant-mcp/internal/store"
	"github.com/nickcecere/qdrant-mcp/internal/ui"
)

var (
	findCollection string
	findLimit      int
	findFilter     string
	findMinScore   float64
	findPlain      bool
	findJSON       bool
	findFilesOnly  bool
)

// findCmd runs a semantic search from the terminal.
var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Search a collection by meaning",
	Long: `Search a collection the same way the qdrant-find tool does.

Examples:
  # Search the configured collection
  qdrant-mcp find "deployment checklist"

  # Search another collection, five results
  qdrant-mcp find "error handling" --collection code -m 5

  # Filter on metadata
  qdrant-mcp find "refunds" --filter '{"must":[{"key":"metadata.language","match":{"value":"go"}}]}'

  # Print the exact tool output
  qdrant-mcp find "refunds" --plain

  # List matching file locations only
  qdrant-mcp find "refunds" -l`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVar(&findCollection, "collection", "", "collection to search (defaults to qdrant.collection_name)")
	findCmd.Flags().IntVarP(&findLimit, "limit", "m", 0, "maximum number of results (defaults to qdrant.search_limit)")
	findCmd.Flags().StringVar(&findFilter, "filter", "", "filter as JSON with must, should and must_not")
	findCmd.Flags().Float64Var(&findMinScore, "min-score", 0, "minimum similarity score")
	findCmd.Flags().BoolVar(&findPlain, "plain", false, "print results as the find tool returns them")
	findCmd.Flags().BoolVar(&findJSON, "json", false, "output results as JSON")
	findCmd.Flags().BoolVarP(&findFilesOnly, "files-only", "l", false, "list matching file locations and scores only")
}

func runFind(cmd *cobra.Command, args []string) error {
	query := args[0]

	opts := connector.SearchOptions{
		Collection: findCollection,
		Limit:      findLimit,
	}
	if findFilter != "" {
		f, err := store.ParseFilter([]byte(findFilter))
		if err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
		opts.Filter = f
	}
	if cmd.Flags().Changed("min-score") {
		opts.ScoreThreshold = &findMinScore
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Debug("Starting search", "query", query, "collection", opts.Collection, "limit", opts.Limit)

	entries, err := a.Connector.Search(ctx, query, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case findJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case findPlain:
		fmt.Fprintln(out, mcp.FormatResults(query, entries))
		return nil
	case findFilesOnly:
		for _, line := range locations(entries) {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, ui.Dim.Render("No results found."))
		return nil
	}
	rendered, err := ui.RenderMarkdown(resultsMarkdown(entries), 100)
	if err != nil {
		log.Debug("Markdown rendering failed, printing raw", "error", err)
		rendered = resultsMarkdown(entries)
	}
	fmt.Fprint(out, rendered)
	return nil
}

// locations lists the file chunks among entries, one per line. Entries
// without a file path are skipped.
func locations(entries []connector.Entry) []string {
	var lines []string
	for _, e := range entries {
		path, ok := e.Metadata["filePath"].(string)
		if !ok || path == "" {
			continue
		}
		line := ui.FilePath.Render(path)
		if start, ok := lineNumber(e.Metadata["startLine"]); ok {
			end, _ := lineNumber(e.Metadata["endLine"])
			line = ui.FormatFilePath(path, start, end)
		}
		if e.Score != nil {
			line += " " + ui.FormatScore(*e.Score)
		}
		lines = append(lines, line)
	}
	return lines
}

// lineNumber reads a line number stored in metadata, which may come back
// from the store as any JSON number.
func lineNumber(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// resultsMarkdown renders entries as a markdown document, with indexed file
// chunks shown as fenced code.
func resultsMarkdown(entries []connector.Entry) string {
	var sb strings.Builder
	for i, e := range entries {
		title := fmt.Sprintf("Result %d", i+1)
		if path, ok := e.Metadata["filePath"]; ok {
			title = fmt.Sprintf("%v", path)
			if start, ok := e.Metadata["startLine"]; ok {
				title += fmt.Sprintf(":%v-%v", start, e.Metadata["endLine"])
			}
		}
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, title)
		if e.Score != nil {
			fmt.Fprintf(&sb, "*score %.4f*\n\n", *e.Score)
		}

		if lang, ok := e.Metadata["language"]; ok {
			fmt.Fprintf(&sb, "```%v\n%s\n```\n\n", lang, e.Content)
		} else {
			sb.WriteString(e.Content)
			sb.WriteString("\n\n")
		}

		var extra []string
		for k, v := range e.Metadata {
			switch k {
			case "filePath", "startLine", "endLine", "language", "contentHash":
				continue
			}
			extra = append(extra, fmt.Sprintf("- **%s**: %v", k, v))
		}
		if len(extra) > 0 {
			slices.Sort(extra)
			sb.WriteString(strings.Join(extra, "\n"))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
