package cli

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/config"
	"github.com/nickcecere/qdrant-mcp/internal/mcp"
)

var (
	serveTransport string
	serveHost      string
	servePort      int
	serveReadOnly  bool
)

// serveCmd runs the MCP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server.

Transports:
  stdio            JSON-RPC over stdin/stdout (default)
  sse              Server-Sent Events on /sse
  streamable-http  Streamable HTTP on /mcp

HTTP transports also serve /healthz and /metrics.

This command is typically invoked by an MCP client and not run directly.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&serveTransport, "transport", "t", "", "transport: stdio, sse or streamable-http")
	cmd.Flags().StringVar(&serveHost, "host", "", "listen host for HTTP transports")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port for HTTP transports")
	cmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "do not expose the store tool")
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("transport") {
		c.Server.Transport = serveTransport
	}
	if flags.Changed("host") {
		c.Server.Host = serveHost
	}
	if flags.Changed("port") {
		c.Server.Port = servePort
	}
	if flags.Changed("read-only") {
		c.Qdrant.ReadOnly = serveReadOnly
	}
	return c.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	server, err := mcp.NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Warn("Failed to close server", "error", err)
		}
	}()

	return server.Run(ctx)
}
