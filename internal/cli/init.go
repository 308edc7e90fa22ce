package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the registry root and database",
	Long: `Create the registry root directory with its addons/ and software/ directories
and an empty registry database. Running init on an existing registry is safe.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := createRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Registry ready at %s\n", reg.Root())
		return nil
	},
}
