package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/keyhub-labs/keyhub/internal/installer"
	"github.com/keyhub-labs/keyhub/internal/loader"
	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/registry"
)

func TestNewData(t *testing.T) {
	d := NewData("echo-detector", manifest.TypeDetector)
	if d.DisplayName != "Echo Detector" {
		t.Errorf("DisplayName = %q, want %q", d.DisplayName, "Echo Detector")
	}
	if d.Version != "0.1.0" {
		t.Errorf("Version = %q, want %q", d.Version, "0.1.0")
	}
	if !reflect.DeepEqual(d.Capabilities, []string{"run"}) {
		t.Errorf("Capabilities = %v, want [run]", d.Capabilities)
	}
}

func TestGenerateEveryType(t *testing.T) {
	for _, typ := range manifest.ValidTypes {
		t.Run(string(typ), func(t *testing.T) {
			outDir := filepath.Join(t.TempDir(), "my-addon")
			result, err := Generate(NewData("my-addon", typ), outDir)
			if err != nil {
				t.Fatalf("Generate() error: %v", err)
			}
			if len(result.Warnings) > 0 {
				t.Errorf("unexpected warnings: %v", result.Warnings)
			}
			assertFiles(t, result, []string{"index.js", "manifest.yaml"})
			assertManifestValid(t, outDir)

			m, err := manifest.Load(outDir)
			if err != nil {
				t.Fatalf("manifest.Load: %v", err)
			}
			if m.Name != "my-addon" || m.Type != typ {
				t.Errorf("manifest = %s/%s, want my-addon/%s", m.Name, m.Type, typ)
			}
			if !reflect.DeepEqual(m.Capabilities, defaultCapabilities[typ]) {
				t.Errorf("capabilities = %v, want %v", m.Capabilities, defaultCapabilities[typ])
			}
		})
	}
}

func TestGeneratedPackagesLoad(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Create(ctx, filepath.Join(t.TempDir(), "registry"), registry.Options{})
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	defer reg.Close()

	calls := map[manifest.AddOnType][]string{
		manifest.TypeDetector:   {"run"},
		manifest.TypeExecutor:   {"execute"},
		manifest.TypeController: {"install", "setup.setupNewClient.setup"},
	}
	projectDir := t.TempDir()

	for typ, paths := range calls {
		name := "gen-" + string(typ)
		src := filepath.Join(t.TempDir(), name)
		if _, err := Generate(NewData(name, typ), src); err != nil {
			t.Fatalf("Generate(%s): %v", typ, err)
		}
		if _, err := reg.Install(ctx, src, installer.Options{Local: true}); err != nil {
			t.Fatalf("Install(%s): %v", typ, err)
		}

		h, err := reg.LoadByName(ctx, name, loader.Context{"projectDir": projectDir})
		if err != nil {
			t.Fatalf("LoadByName(%s): %v", name, err)
		}
		for _, p := range paths {
			if _, err := reg.Call(ctx, h, p, "arg"); err != nil {
				t.Errorf("Call(%s, %s): %v", name, p, err)
			}
		}
	}
}

func TestGenerateExecutorUsesDeclaredSoftware(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Create(ctx, filepath.Join(t.TempDir(), "registry"), registry.Options{})
	if err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	defer reg.Close()

	src := filepath.Join(t.TempDir(), "ahk")
	if _, err := Generate(NewData("ahk", manifest.TypeExecutor), src); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := reg.Install(ctx, src, installer.Options{Local: true}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	h, err := reg.LoadByName(ctx, "ahk", nil)
	if err != nil {
		t.Fatalf("LoadByName: %v", err)
	}
	out, err := reg.Call(ctx, h, "execute", "MsgBox hi")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("execute returned %T, want map", out)
	}
	if got["executable"] != "bin/ahk-tool" || got["script"] != "MsgBox hi" {
		t.Errorf("execute = %v", got)
	}
}

func TestGenerateInvalidType(t *testing.T) {
	_, err := Generate(NewData("test", "nonexistent"), t.TempDir())
	if err == nil {
		t.Fatal("expected error for invalid add-on type")
	}
}

func TestGenerateNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Generate(NewData("test", manifest.TypeDetector), dir)
	if err == nil {
		t.Fatal("expected error for non-empty output directory")
	}
	if !strings.Contains(err.Error(), "not empty") {
		t.Errorf("error should mention non-empty dir, got: %v", err)
	}
}

func assertFiles(t *testing.T, result *Result, expected []string) {
	t.Helper()
	if !reflect.DeepEqual(result.Files, expected) {
		t.Errorf("files = %v, want %v", result.Files, expected)
	}
}

func assertManifestValid(t *testing.T, dir string) {
	t.Helper()
	result, err := manifest.ValidateFile(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		t.Fatalf("manifest validation error: %v", err)
	}
	if !result.Valid {
		t.Errorf("generated manifest is invalid: %s", result.Summary())
	}
}
