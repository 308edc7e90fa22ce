//go:build integration

package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keyhub-labs/keyhub/internal/registry"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	Root       string // registry root
	SourceDir  string // where local add-on packages are authored
	ProjectDir string // a mock project directory handed to add-ons
}

// setupTestEnv creates isolated temp directories and points HOME and
// KEYHUB_ROOT at them so nothing touches the real registry.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		Root:       filepath.Join(t.TempDir(), "registry"),
		SourceDir:  t.TempDir(),
		ProjectDir: t.TempDir(),
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("KEYHUB_ROOT", env.Root)

	return env
}

// createRegistry initializes the registry at env.Root and closes it when
// the test ends.
func createRegistry(t *testing.T, env *testEnv, opts registry.Options) *registry.Registry {
	t.Helper()
	reg, err := registry.Create(context.Background(), env.Root, opts)
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

// writePackage authors an add-on package under env.SourceDir and returns
// its directory.
func writePackage(t *testing.T, env *testEnv, name, typ, version, source string, capabilities ...string) string {
	t.Helper()

	dir := filepath.Join(env.SourceDir, name)
	var b strings.Builder
	b.WriteString("name: " + name + "\n")
	b.WriteString("type: " + typ + "\n")
	b.WriteString("version: \"" + version + "\"\n")
	b.WriteString("entry: index.js\n")
	b.WriteString("capabilities:\n")
	for _, c := range capabilities {
		b.WriteString("  - " + c + "\n")
	}
	writeFile(t, filepath.Join(dir, "manifest.yaml"), b.String())
	writeFile(t, filepath.Join(dir, "index.js"), source)
	return dir
}

// writeFile creates a file at the given path with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// assertFileNotExists fails the test if the file exists.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err == nil {
		t.Errorf("expected file NOT to exist: %s", path)
	}
}

// assertDirExists fails the test if the directory does not exist.
func assertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected directory to exist: %s (error: %v)", path, err)
		return
	}
	if !info.IsDir() {
		t.Errorf("expected %s to be a directory, but it is a file", path)
	}
}

// assertNames fails if got and want differ.
func assertNames(t *testing.T, what string, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}
