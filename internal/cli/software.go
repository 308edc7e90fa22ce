package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var softwareJSON bool

func init() {
	softwareCmd.PersistentFlags().BoolVar(&softwareJSON, "json", false, "Output as JSON")
	softwareCmd.AddCommand(softwareExecutablesCmd)
	rootCmd.AddCommand(softwareCmd)
}

var softwareCmd = &cobra.Command{
	Use:   "software [add-on]",
	Short: "List software declared by installed add-ons",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		var owner string
		if len(args) == 1 {
			if _, err := reg.Get(cmd.Context(), args[0]); err != nil {
				return err
			}
			owner = args[0]
		}
		software, err := reg.Software(cmd.Context(), owner)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if softwareJSON {
			data, err := json.MarshalIndent(software, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling software: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if len(software) == 0 {
			fmt.Fprintln(out, "No software declared.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADD-ON\tDOWNLOAD\tINSTALLED\tEXECUTABLES")
		for _, sw := range software {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\n", sw.Name, sw.OwnerName, sw.DownloadType, sw.Installed, len(sw.Executables))
		}
		return w.Flush()
	},
}

var softwareExecutablesCmd = &cobra.Command{
	Use:   "executables <software>",
	Short: "List the executables of a software entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		rows, err := reg.Executables(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if softwareJSON {
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling executables: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPATH\tOS\tARCH\tADD-ON")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.Name, row.Path, row.OS, row.Arch, row.OwnerName)
		}
		return w.Flush()
	},
}
