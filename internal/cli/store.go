package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/connector"
	"github.com/nickcecere/qdrant-mcp/internal/ui"
)

var (
	storeCollection string
	storeMetadata   string
)

// storeCmd stores one entry from the terminal.
var storeCmd = &cobra.Command{
	Use:   "store <information>",
	Short: "Store information in a collection",
	Long: `Embed and store a piece of information, the same way the qdrant-store tool
does. The collection is created on first use.

Examples:
  qdrant-mcp store "The staging database is rebuilt every Sunday"
  qdrant-mcp store "Use pnpm, not npm" --collection conventions --metadata '{"team":"web"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runStore,
}

func init() {
	storeCmd.Flags().StringVar(&storeCollection, "collection", "", "collection to store into (defaults to qdrant.collection_name)")
	storeCmd.Flags().StringVar(&storeMetadata, "metadata", "", "metadata as a JSON object")
}

func runStore(cmd *cobra.Command, args []string) error {
	entry := connector.Entry{Content: args[0]}
	if storeMetadata != "" {
		if err := json.Unmarshal([]byte(storeMetadata), &entry.Metadata); err != nil {
			return fmt.Errorf("invalid --metadata: %w", err)
		}
	}

	if cfg.Qdrant.ReadOnly {
		return fmt.Errorf("qdrant.read_only is set, refusing to store")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Connector.Store(ctx, entry, storeCollection); err != nil {
		return err
	}

	collection := storeCollection
	if collection == "" {
		collection = a.Connector.DefaultCollection()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Stored in %s\n", ui.Success.Render("✓"), ui.Bold.Render(collection))
	return nil
}
