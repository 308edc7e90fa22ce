package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/platform"
	"github.com/keyhub-labs/keyhub/internal/store"
	"github.com/spf13/cobra"
)

var (
	listType string
	listJSON bool
)

func init() {
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "Filter by add-on type (detector, executor, controller)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered add-ons",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		var records []store.AddOn
		if listType != "" {
			t := manifest.AddOnType(listType)
			if !t.Valid() {
				return fmt.Errorf("unknown add-on type %q", listType)
			}
			records, err = reg.ListByType(cmd.Context(), t)
		} else {
			records, err = reg.List(cmd.Context())
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling add-ons: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(records) == 0 {
			fmt.Fprintln(out, "No add-ons installed.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tNAME\tVERSION\tSOURCE")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Type, rec.Name, rec.Version, source(rec))
		}
		return w.Flush()
	},
}

// source describes where an add-on's files live.
func source(rec store.AddOn) string {
	if !rec.IsLink {
		return "copy"
	}
	target, err := platform.ReadSymlinkTarget(rec.InstallPath)
	if err != nil {
		return "link"
	}
	return "link -> " + target
}
