package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", t.TempDir())

	Load()
	s := Current()

	assert.Equal(t, DefaultRoot(), s.Root)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 3, s.FetchRetries)
	assert.Equal(t, "1m0s", s.FetchTimeout.String())
}

func TestEnvOverridesNestedKey(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KEYHUB_LOG_LEVEL", "debug")
	t.Setenv("KEYHUB_ROOT", "/srv/keyhub")

	Load()
	s := Current()

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "/srv/keyhub", s.Root)
}

func TestSetWritesFile(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	Load()
	require.NoError(t, Set(KeyFetchURL, "https://addons.example.test"))

	data, err := os.ReadFile(filepath.Join(home, ".keyhub", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "addons.example.test")
	assert.Equal(t, "https://addons.example.test", Get(KeyFetchURL))
}

func TestSetRejectsBadValues(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	Load()

	tests := []struct{ key, value string }{
		{"registry.path", "/tmp"},
		{KeyLogLevel, "verbose"},
		{KeyLogFormat, "xml"},
		{KeyFetchRetries, "-1"},
		{KeyFetchTimeout, "soon"},
	}
	for _, tt := range tests {
		assert.Error(t, Set(tt.key, tt.value), "%s=%s", tt.key, tt.value)
	}
	assert.NoFileExists(t, filepath.Join(home, ".keyhub", "config.yaml"))
}

func TestSetTypedValues(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", t.TempDir())
	Load()

	require.NoError(t, Set(KeyFetchRetries, "5"))
	require.NoError(t, Set(KeyFetchTimeout, "15s"))

	s := Current()
	assert.Equal(t, 5, s.FetchRetries)
	assert.Equal(t, "15s", s.FetchTimeout.String())
}
