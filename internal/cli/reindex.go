package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/keyhub-labs/keyhub/internal/reconcile"
	"github.com/spf13/cobra"
)

var reindexJSON bool

func init() {
	reindexCmd.Flags().BoolVar(&reindexJSON, "json", false, "Output the change summary as JSON")
	rootCmd.AddCommand(reindexCmd)
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Bring the registry database in step with the add-ons directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		diff, err := reg.Reindex(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if reindexJSON {
			data, err := json.MarshalIndent(diff, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling reindex summary: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		printDiff(out, diff)
		return nil
	},
}

func printDiff(w io.Writer, diff reconcile.Diff) {
	if diff.Empty() && len(diff.Warnings) == 0 {
		fmt.Fprintln(w, "Registry is up to date.")
		return
	}
	for _, name := range diff.Added {
		fmt.Fprintf(w, "  + %s\n", name)
	}
	for _, name := range diff.Updated {
		fmt.Fprintf(w, "  ~ %s\n", name)
	}
	for _, name := range diff.Removed {
		fmt.Fprintf(w, "  - %s\n", name)
	}
	for _, warn := range diff.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warn)
	}
	fmt.Fprintf(w, "\n%d added, %d updated, %d removed\n", len(diff.Added), len(diff.Updated), len(diff.Removed))
}
