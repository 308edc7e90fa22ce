package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/keyhub-labs/keyhub/internal/errcode"
	"go.yaml.in/yaml/v3"
)

// FileNames lists the manifest file names recognised in a package directory,
// in lookup priority order. JSON manifests are parsed by the YAML decoder.
var FileNames = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

// ErrNoManifest is returned when a directory holds none of FileNames.
var ErrNoManifest = errors.New("no manifest file found")

// Find returns the path of the highest-priority manifest file in dir.
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("%s: %w", dir, ErrNoManifest)
}

// ParseFile reads a manifest file without validating it.
func ParseFile(path string) (*Manifest, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data, path)
}

// Load finds, parses, and fully validates the manifest of the package in dir.
// Every failure is reported as errcode.InvalidManifest.
func Load(dir string) (*Manifest, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidManifest, err, "locating manifest")
	}

	data, err := readFile(path)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidManifest, err, "reading manifest")
	}

	result, err := Validate(data)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidManifest, err, "validating %s", path)
	}
	if !result.Valid {
		return nil, errcode.New(errcode.InvalidManifest, "%s: %s", path, result.Summary())
	}

	m, err := parse(data, path)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidManifest, err, "")
	}

	if issues := Check(m); len(issues) > 0 {
		r := ValidationResult{Issues: issues}
		return nil, errcode.New(errcode.InvalidManifest, "%s: %s", path, r.Summary())
	}

	return m, nil
}

// parse unmarshals YAML (or JSON) data into a Manifest.
func parse(data []byte, path string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	m.Name = strings.TrimSpace(m.Name)
	return &m, nil
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
