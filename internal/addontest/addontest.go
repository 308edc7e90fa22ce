// Package addontest writes throwaway add-on packages for tests.
package addontest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Package describes a package to write with Write.
type Package struct {
	Name         string
	Type         string // defaults to "detector"
	Version      string // defaults to "1.0.0"
	Entry        string // defaults to "index.js"
	Capabilities []string
	// Source is written to the entry file. Empty means a module exporting
	// every capability as a function returning its first argument.
	Source string
	// Extra is appended verbatim to the manifest.
	Extra string
}

// EchoSource is a JS module whose run capability returns its first argument.
const EchoSource = `module.exports = { run: function (keyhub, input) { return input; } };`

// Write creates dir/<name> holding a manifest and entry point, and returns
// the package directory.
func Write(t testing.TB, dir string, p Package) string {
	t.Helper()
	if p.Type == "" {
		p.Type = "detector"
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	if p.Entry == "" {
		p.Entry = "index.js"
	}
	if len(p.Capabilities) == 0 {
		p.Capabilities = []string{"run"}
	}

	pkgDir := filepath.Join(dir, p.Name)
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString("name: " + p.Name + "\n")
	b.WriteString("type: " + p.Type + "\n")
	b.WriteString("version: " + p.Version + "\n")
	b.WriteString("entry: \"" + p.Entry + "\"\n")
	b.WriteString("capabilities:\n")
	for _, c := range p.Capabilities {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString(p.Extra)
	WriteFile(t, filepath.Join(pkgDir, "manifest.yaml"), b.String())

	if strings.HasPrefix(p.Entry, "builtin:") {
		return pkgDir
	}
	src := p.Source
	if src == "" {
		src = defaultSource(p.Capabilities)
	}
	WriteFile(t, filepath.Join(pkgDir, filepath.FromSlash(p.Entry)), src)
	return pkgDir
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// defaultSource builds a CommonJS module exporting an identity function at
// every capability path.
func defaultSource(caps []string) string {
	var b strings.Builder
	b.WriteString("var identity = function (keyhub, input) { return input; };\n")
	b.WriteString("var m = {};\n")
	for _, c := range caps {
		segs := strings.Split(c, ".")
		for i := 1; i < len(segs); i++ {
			obj := "m." + strings.Join(segs[:i], ".")
			b.WriteString(obj + " = " + obj + " || {};\n")
		}
		b.WriteString("m." + c + " = identity;\n")
	}
	b.WriteString("module.exports = m;\n")
	return b.String()
}
