package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/keyhub-labs/keyhub/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Recognised configuration keys.
const (
	KeyRoot         = "root"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
	KeyFetchURL     = "fetch.url"
	KeyFetchRetries = "fetch.retries"
	KeyFetchTimeout = "fetch.timeout"
)

// Keys lists every recognised key in display order.
var Keys = []string{KeyRoot, KeyLogLevel, KeyLogFormat, KeyFetchURL, KeyFetchRetries, KeyFetchTimeout}

// checkValue rejects values the typed settings could not decode.
func checkValue(key, value string) error {
	switch key {
	case KeyRoot, KeyFetchURL:
		return nil
	case KeyLogLevel:
		switch value {
		case "debug", "info", "warn", "error":
			return nil
		}
		return fmt.Errorf("log level must be debug, info, warn or error")
	case KeyLogFormat:
		if value == "console" || value == "json" {
			return nil
		}
		return fmt.Errorf("log format must be console or json")
	case KeyFetchRetries:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("retries must be a non-negative integer")
		}
		return nil
	case KeyFetchTimeout:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("timeout must be a duration such as 30s: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown key (known keys: %s)", strings.Join(Keys, ", "))
}

// Settings is the typed view of the loaded configuration.
type Settings struct {
	Root         string
	LogLevel     string
	LogFormat    string
	FetchURL     string
	FetchRetries int
	FetchTimeout time.Duration
}

// Dir returns the path to the config directory (~/.keyhub/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.keyhub/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// DefaultRoot returns the registry root used when "root" is not configured.
func DefaultRoot() string {
	return filepath.Join(Dir(), "registry")
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// Nested keys map to env vars with underscores, e.g. log.level → KEYHUB_LOG_LEVEL.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	viper.SetDefault(KeyRoot, DefaultRoot())
	viper.SetDefault(KeyLogLevel, "info")
	viper.SetDefault(KeyLogFormat, "console")
	viper.SetDefault(KeyFetchRetries, 3)
	viper.SetDefault(KeyFetchTimeout, "60s")

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Current returns the typed settings. Call Load first.
func Current() Settings {
	return Settings{
		Root:         viper.GetString(KeyRoot),
		LogLevel:     viper.GetString(KeyLogLevel),
		LogFormat:    viper.GetString(KeyLogFormat),
		FetchURL:     viper.GetString(KeyFetchURL),
		FetchRetries: viper.GetInt(KeyFetchRetries),
		FetchTimeout: viper.GetDuration(KeyFetchTimeout),
	}
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set validates and writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := checkValue(key, value); err != nil {
		return err
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
