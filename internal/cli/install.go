package cli

import (
	"fmt"

	"github.com/keyhub-labs/keyhub/internal/installer"
	"github.com/spf13/cobra"
)

var (
	installLink    bool
	installLocal   bool
	installVersion string
	installForce   bool
)

func init() {
	installCmd.Flags().BoolVar(&installLink, "link", false, "Link the local directory instead of copying it")
	installCmd.Flags().BoolVar(&installLocal, "local", false, "Treat the source as a local directory")
	installCmd.Flags().StringVar(&installVersion, "version", "", "Version or constraint to fetch from the package index")
	installCmd.Flags().BoolVar(&installForce, "force", false, "Replace an add-on that is already installed")
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install <name|path>",
	Short: "Install an add-on package into the registry",
	Long: `Install an add-on package by name from the configured package index, or from a
local directory. Local packages are copied into the add-ons directory unless --link
is given, in which case the directory is linked in place for development.`,
	Example: `  keyhub install echo-detector
  keyhub install echo-detector --version "^1.2"
  keyhub install ./my-addon --link`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := createRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		rec, err := reg.Install(cmd.Context(), args[0], installer.Options{
			UseLink: installLink,
			Local:   installLocal,
			Version: installVersion,
			Force:   installForce,
		})
		if err != nil {
			return err
		}

		mode := "copied"
		if rec.IsLink {
			mode = "linked"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s@%s (%s)\n", rec.Type, rec.Name, rec.Version, mode)
		return nil
	},
}
