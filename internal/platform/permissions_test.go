package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestChmod(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "test.txt")
	if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Chmod(path, 0600); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, path, 0600)
	}
}

func TestShareTree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not supported on Windows")
	}

	root, err := os.MkdirTemp(t.TempDir(), "staging-")
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "lib")
	if err := os.Mkdir(nested, 0700); err != nil {
		t.Fatal(err)
	}
	private := filepath.Join(nested, "index.js")
	if err := os.WriteFile(private, []byte("module.exports = {};"), 0600); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(root, "run.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatal(err)
	}

	if err := ShareTree(root); err != nil {
		t.Fatalf("ShareTree: %v", err)
	}

	assertPerm(t, root, 0755)
	assertPerm(t, nested, 0755)
	assertPerm(t, private, 0644)
	assertPerm(t, script, 0755)
}

func TestSharedMode(t *testing.T) {
	tests := []struct {
		mode  os.FileMode
		isDir bool
		want  os.FileMode
	}{
		{0700, true, 0755},
		{0600, false, 0644},
		{0700, false, 0755},
		{0664, false, 0664},
	}
	for _, tt := range tests {
		if got := sharedMode(tt.mode, tt.isDir); got != tt.want {
			t.Errorf("sharedMode(%o, %v) = %o, want %o", tt.mode, tt.isDir, got, tt.want)
		}
	}
}

func assertPerm(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Errorf("%s permissions = %o, want %o", filepath.Base(path), perm, want)
	}
}
