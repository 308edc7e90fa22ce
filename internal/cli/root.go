package cli

import (
	"context"
	"fmt"

	"github.com/keyhub-labs/keyhub/internal/branding"
	"github.com/keyhub-labs/keyhub/internal/config"
	"github.com/keyhub-labs/keyhub/internal/fetcher"
	"github.com/keyhub-labs/keyhub/internal/logging"
	"github.com/keyhub-labs/keyhub/internal/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

// logger is built from configuration before every command runs.
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` installs add-on packages (detectors, executors, controllers) into a
registry, keeps the registry database in step with the add-ons directory, and loads
add-ons to invoke their capabilities.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.Load()

		cfg := logging.DefaultConfig()
		cfg.Level = viper.GetString(config.KeyLogLevel)
		cfg.Format = viper.GetString(config.KeyLogFormat)
		l, err := logging.New(cfg)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"root":       config.KeyRoot,
	"log-level":  config.KeyLogLevel,
	"log-format": config.KeyLogFormat,
	"fetch-url":  config.KeyFetchURL,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("root", "", "Registry root directory (default ~/"+branding.HomeDir()+"/registry)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.String("fetch-url", "", "Package index used to install add-ons by name")

	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}

// registryOptions builds the options shared by every command that touches
// the registry.
func registryOptions() registry.Options {
	s := config.Current()
	var f fetcher.Fetcher = fetcher.Unavailable{}
	if s.FetchURL != "" {
		f = fetcher.NewHTTP(s.FetchURL, s.FetchRetries, s.FetchTimeout, logger)
	}
	return registry.Options{
		Logger:  logger,
		Fetcher: f,
	}
}

// openRegistry opens the configured registry root, which must have been
// initialized.
func openRegistry(ctx context.Context) (*registry.Registry, error) {
	return registry.Open(ctx, config.Current().Root, registryOptions())
}

// createRegistry opens the configured registry root, initializing it first
// when needed.
func createRegistry(ctx context.Context) (*registry.Registry, error) {
	return registry.Create(ctx, config.Current().Root, registryOptions())
}
