package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keyhub-labs/keyhub/internal/loader"
	"github.com/spf13/cobra"
)

var (
	callProjectDir string
	callProps      map[string]string
	callTimeout    time.Duration
)

func init() {
	callCmd.Flags().StringVar(&callProjectDir, "project-dir", "", "Project directory passed to the add-on")
	callCmd.Flags().StringToStringVar(&callProps, "prop", nil, "Extra context property passed to the add-on (key=value)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Abort the call after this long (0 waits indefinitely)")
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call <name> <capability> [args...]",
	Short: "Load an add-on and invoke one of its capabilities",
	Long: `Load an add-on and invoke the capability at the given dotted path. Each argument
is decoded as JSON when possible and passed as a string otherwise. The result is
printed as JSON.`,
	Example: `  keyhub call echo-detector run '{"x": 1}'
  keyhub call kbd setup.setupNewClient.setup --project-dir .`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if callTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, callTimeout)
			defer cancel()
		}

		reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()

		h, err := reg.LoadByName(ctx, args[0], callContext(callProjectDir, callProps))
		if err != nil {
			return err
		}
		result, err := reg.Call(ctx, h, args[1], parseArgs(args[2:])...)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling result of %s.%s: %w", args[0], args[1], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func callContext(projectDir string, props map[string]string) loader.Context {
	lctx := loader.Context{}
	for k, v := range props {
		lctx[k] = v
	}
	if projectDir != "" {
		lctx["projectDir"] = projectDir
	}
	return lctx
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			out = append(out, s)
			continue
		}
		out = append(out, v)
	}
	return out
}
