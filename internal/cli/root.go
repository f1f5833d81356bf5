// Package cli implements the command-line interface for qdrant-mcp.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/app"
	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/mcp"
	"github.com/nickcecere/qdrant-mcp/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool

	// cfg is loaded once before any command runs.
	cfg *config.Config
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	mcp.ServerVersion = v
}

// rootCmd runs the MCP server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "qdrant-mcp",
	Short: "MCP server for semantic memory in a vector database",
	Long: `qdrant-mcp exposes a vector database to AI agents through the Model Context
Protocol. Agents store information with qdrant-store and retrieve it by
meaning with qdrant-find.

Vectors live in Qdrant (qdrant.url) or in a local SQLite database
(qdrant.local_path). Embeddings come from a local hashing model, an
OpenAI-compatible endpoint, OpenAI or Ollama.

Examples:
  # Serve over stdio (default)
  qdrant-mcp

  # Serve over streamable HTTP
  qdrant-mcp serve --transport streamable-http --port 8000

  # Query from the terminal
  qdrant-mcp find "how do we rotate keys" --collection notes`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		ui.SetLevel(cfg.Log.Level)
		if debug {
			ui.SetDebug(true)
			log.Debug("Debug logging enabled")
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error(err.Error())
	}
	return err
}

func init() {
	ui.InitLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/qdrant-mcp/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "qdrant-mcp %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openApp builds the connector stack for the one-shot commands.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise: %w", err)
	}
	return a, nil
}
