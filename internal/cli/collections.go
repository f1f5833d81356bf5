package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/qdrant-mcp/internal/ui"
)

// collectionsCmd lists the collections in the store.
var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"ls"},
	Short:   "List collections with point counts",
	Args:    cobra.NoArgs,
	RunE:    runCollections,
}

func runCollections(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.Connector.ListCollectionNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, ui.Dim.Render("No collections."))
		return nil
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		count := "?"
		if n, err := a.Connector.CountPoints(ctx, name); err == nil {
			count = strconv.FormatUint(n, 10)
		} else {
			log.Debug("Failed to count points", "collection", name, "error", err)
		}

		layout := "?"
		if l, err := a.Connector.ResolveVectorLayout(ctx, name); err == nil {
			layout = string(l)
		}

		marker := ""
		if name == a.Connector.DefaultCollection() {
			marker = "*"
		}
		rows = append(rows, []string{name + marker, count, layout})
	}

	fmt.Fprintln(out, ui.Table([]string{"COLLECTION", "POINTS", "VECTORS"}, rows))
	return nil
}
