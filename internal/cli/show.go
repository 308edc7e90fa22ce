package cli

import (
	"fmt"
	"time"

	"github.com/keyhub-labs/keyhub/internal/store"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the registry record of an add-on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		rec, err := reg.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		software, err := reg.Software(cmd.Context(), rec.Name)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(newAddOnView(rec, software))
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", rec.Name, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

type addOnView struct {
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type"`
	Version      string         `yaml:"version"`
	DisplayName  string         `yaml:"displayName,omitempty"`
	Description  string         `yaml:"description,omitempty"`
	Entry        string         `yaml:"entry"`
	InstallPath  string         `yaml:"installPath"`
	Linked       bool           `yaml:"linked"`
	Size         int64          `yaml:"size"`
	Updated      string         `yaml:"updated"`
	Capabilities []string       `yaml:"capabilities"`
	Software     []softwareView `yaml:"software,omitempty"`
}

type softwareView struct {
	Name        string   `yaml:"name"`
	Download    string   `yaml:"download"`
	URL         string   `yaml:"url,omitempty"`
	Installed   bool     `yaml:"installed"`
	Executables []string `yaml:"executables,omitempty"`
}

func newAddOnView(rec store.AddOn, software []store.Software) addOnView {
	v := addOnView{
		Name:         rec.Name,
		Type:         string(rec.Type),
		Version:      rec.Version,
		DisplayName:  rec.DisplayName,
		Description:  rec.Description,
		Entry:        rec.Entry,
		InstallPath:  rec.InstallPath,
		Linked:       rec.IsLink,
		Size:         rec.Size,
		Updated:      rec.UpdatedAt.Format(time.RFC3339),
		Capabilities: rec.Capabilities,
	}
	for _, sw := range software {
		sv := softwareView{
			Name:      sw.Name,
			Download:  sw.DownloadType,
			URL:       sw.URL,
			Installed: sw.Installed,
		}
		for _, exe := range sw.Executables {
			sv.Executables = append(sv.Executables, exe.Path)
		}
		v.Software = append(v.Software, sv)
	}
	return v
}
