package cli

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/keyhub-labs/keyhub/internal/addontest"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so commands can run more
// than once in a test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Value.Type() == "stringToString" {
			return
		}
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI against an isolated home directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func setupHome(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return filepath.Join(t.TempDir(), "registry")
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []any
	}{
		{"none", nil, []any{}},
		{"object", []string{`{"x": 1}`}, []any{map[string]any{"x": float64(1)}}},
		{"number", []string{"42"}, []any{float64(42)}},
		{"quoted string", []string{`"hi"`}, []any{"hi"}},
		{"bare word falls back", []string{"hello"}, []any{"hello"}},
		{"mixed", []string{"true", "C:\\tools"}, []any{true, "C:\\tools"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgs(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArgs(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCallContext(t *testing.T) {
	got := callContext("/work", map[string]string{"mode": "dev"})
	if got["projectDir"] != "/work" || got["mode"] != "dev" {
		t.Errorf("callContext = %v", got)
	}
	if empty := callContext("", nil); len(empty) != 0 {
		t.Errorf("callContext with no input = %v, want empty", empty)
	}
}

func TestInstallReindexCall(t *testing.T) {
	root := setupHome(t)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector", Source: addontest.EchoSource})

	out, err := run(t, "install", src, "--local", "--root", root)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !strings.Contains(out, "Installed detector echo-detector") {
		t.Errorf("install output = %q", out)
	}

	out, err = run(t, "reindex", "--root", root)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if !strings.Contains(out, "+ echo-detector") {
		t.Errorf("reindex output = %q, want echo-detector added", out)
	}

	out, err = run(t, "list", "--type", "detector", "--root", root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "echo-detector") || !strings.Contains(out, "copy") {
		t.Errorf("list output = %q", out)
	}

	out, err = run(t, "call", "echo-detector", "run", `{"x": 1}`, "--root", root)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(out, `"x": 1`) {
		t.Errorf("call output = %q, want the input echoed", out)
	}

	out, err = run(t, "show", "echo-detector", "--root", root)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "name: echo-detector") || !strings.Contains(out, "- run") {
		t.Errorf("show output = %q", out)
	}
}

func TestUninstallThenCall(t *testing.T) {
	root := setupHome(t)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})

	if _, err := run(t, "install", src, "--root", root); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := run(t, "uninstall", "echo-detector", "--root", root); err != nil {
		t.Fatalf("uninstall: %v", err)
	}

	_, err := run(t, "call", "echo-detector", "run", "--root", root)
	if !errors.Is(err, errcode.NotInRegistry) {
		t.Fatalf("call after uninstall: err = %v, want NotInRegistry", err)
	}
	if code := errcode.ExitCode(err); code != 3 {
		t.Errorf("ExitCode = %d, want 3", code)
	}
}

func TestCommandsRequireRegistry(t *testing.T) {
	root := setupHome(t)

	for _, args := range [][]string{{"list"}, {"reindex"}, {"show", "x"}} {
		_, err := run(t, append(args, "--root", root)...)
		if !errors.Is(err, errcode.DBLoadFailure) {
			t.Errorf("%v: err = %v, want DBLoadFailure", args, err)
		}
	}
}

func TestInitIsRepeatable(t *testing.T) {
	root := setupHome(t)
	for i := 0; i < 2; i++ {
		out, err := run(t, "init", "--root", root)
		if err != nil {
			t.Fatalf("init #%d: %v", i+1, err)
		}
		if !strings.Contains(out, root) {
			t.Errorf("init output = %q, want root path", out)
		}
	}

	out, err := run(t, "list", "--root", root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No add-ons installed.") {
		t.Errorf("list output = %q", out)
	}
}

func TestVersion(t *testing.T) {
	setupHome(t)
	buildVersion = "1.2.3"

	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "1.2.3" {
		t.Errorf("version --short = %q", out)
	}
}

func TestNewThenLinkInstall(t *testing.T) {
	root := setupHome(t)
	parent := t.TempDir()

	out, err := run(t, "new", "kbd", "--type", "controller", "--dir", parent)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !strings.Contains(out, "manifest.yaml") {
		t.Errorf("new output = %q", out)
	}

	if _, err := run(t, "install", filepath.Join(parent, "kbd"), "--link", "--root", root); err != nil {
		t.Fatalf("install --link: %v", err)
	}

	out, err = run(t, "call", "kbd", "setup.setupNewClient.setup", `"client-1"`, "--project-dir", parent, "--root", root)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(out, `"client": "client-1"`) {
		t.Errorf("call output = %q", out)
	}
}
