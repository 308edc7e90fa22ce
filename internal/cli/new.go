package cli

import (
	"fmt"
	"path/filepath"

	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	newType string
	newDir  string
)

func init() {
	newCmd.Flags().StringVarP(&newType, "type", "t", string(manifest.TypeDetector), "Add-on type (detector, executor, controller)")
	newCmd.Flags().StringVarP(&newDir, "dir", "d", ".", "Parent directory for the new package")
	rootCmd.AddCommand(newCmd)
}

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Scaffold a new add-on package",
	Long: `Create a new add-on package with a manifest and a JavaScript entry point that
stubs the capabilities the add-on type conventionally declares. Install it for
development with "install <dir> --link".`,
	Example: `  keyhub new echo-detector
  keyhub new kbd --type controller --dir ./addons`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		outDir := filepath.Join(newDir, name)

		result, err := scaffold.Generate(scaffold.NewData(name, manifest.AddOnType(newType)), outDir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created %s %s in %s\n", newType, name, result.OutputDir)
		for _, f := range result.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
		return nil
	},
}
