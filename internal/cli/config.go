package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/ui"
)

var configShowPath bool

// configCmd prints the effective configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, config file, .env and environment
variables have been applied. Secrets are masked.

Examples:
  # Show current configuration
  qdrant-mcp config

  # Show config file paths
  qdrant-mcp config --path`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	url, localPath := cfg.StoreLocation()

	if configShowPath {
		fmt.Fprintln(out, ui.SectionTitle.Render("Configuration Paths"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Global config: %s\n", config.GlobalConfigPath())
		fmt.Fprintf(out, "Local config:  ./config.yaml\n")
		if cfgFile != "" {
			fmt.Fprintf(out, "Flag config:   %s\n", cfgFile)
		}
		if localPath != "" {
			fmt.Fprintf(out, "Database:      %s\n", localPath)
		}
		return nil
	}

	fmt.Fprintln(out, ui.SectionTitle.Render("Current Configuration"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Store:"))
	if url != "" {
		fmt.Fprintf(out, "  URL: %s\n", url)
		fmt.Fprintf(out, "  API key: %s\n", mask(cfg.Qdrant.APIKey))
	} else {
		fmt.Fprintf(out, "  Local path: %s\n", localPath)
	}
	fmt.Fprintf(out, "  Default collection: %s\n", orNone(cfg.Qdrant.CollectionName))
	fmt.Fprintf(out, "  Search limit: %d\n", cfg.Qdrant.SearchLimit)
	if cfg.Qdrant.ScoreThreshold != nil {
		fmt.Fprintf(out, "  Score threshold: %.4f\n", *cfg.Qdrant.ScoreThreshold)
	}
	fmt.Fprintf(out, "  Read-only: %t\n", cfg.Qdrant.ReadOnly)
	fmt.Fprintf(out, "  Arbitrary filters: %t\n", cfg.Qdrant.AllowArbitraryFilter)
	fmt.Fprintf(out, "  Filterable fields: %d\n", len(cfg.Qdrant.FilterableFields))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Embeddings:"))
	fmt.Fprintf(out, "  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Fprintf(out, "  Model: %s\n", orNone(cfg.Embeddings.Model))
	switch cfg.Embeddings.Provider {
	case "local":
		fmt.Fprintf(out, "  Dimensions: %d\n", cfg.Embeddings.Local.Dimensions)
	case "ollama":
		fmt.Fprintf(out, "  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	default:
		fmt.Fprintf(out, "  Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
		fmt.Fprintf(out, "  API key: %s\n", mask(cfg.Embeddings.OpenAI.APIKey))
		fmt.Fprintf(out, "  Timeout: %s\n", cfg.Embeddings.OpenAI.Timeout)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Server:"))
	fmt.Fprintf(out, "  Transport: %s\n", cfg.Server.Transport)
	if cfg.Server.Transport != "stdio" {
		fmt.Fprintf(out, "  Address: %s\n", cfg.Server.Addr())
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Cache:"))
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Cache.Backend)
	if cfg.Cache.Backend == "redis" {
		fmt.Fprintf(out, "  Redis: %s (db %d)\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	}
	fmt.Fprintf(out, "  TTL: %s\n", cfg.Cache.TTL)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Indexing:"))
	fmt.Fprintf(out, "  Max File Size: %s\n", formatBytes(int64(cfg.Indexing.MaxFileSize)))
	fmt.Fprintf(out, "  Max File Count: %d\n", cfg.Indexing.MaxFileCount)
	fmt.Fprintf(out, "  Chunk Size: %d lines\n", cfg.Indexing.ChunkSize)
	fmt.Fprintf(out, "  Chunk Overlap: %d lines\n", cfg.Indexing.ChunkOverlap)
	fmt.Fprintf(out, "  Batch Size: %d\n", cfg.Indexing.BatchSize)
	fmt.Fprintf(out, "  Ignore Patterns: %d\n", len(cfg.Ignore))
	return nil
}

func mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****"
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
