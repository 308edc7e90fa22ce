package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/keyhub-labs/keyhub/internal/manifest"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates
var templateFS embed.FS

// defaultCapabilities lists the capabilities each template implements.
var defaultCapabilities = map[manifest.AddOnType][]string{
	manifest.TypeDetector:   {"run"},
	manifest.TypeExecutor:   {"execute"},
	manifest.TypeController: {"install", "setup.setupNewClient.setup"},
}

// Data holds all template variables available to scaffold templates.
type Data struct {
	Name         string // e.g., "echo-detector"
	Type         manifest.AddOnType
	Version      string // Semver, e.g., "0.1.0"
	DisplayName  string // Derived: "Echo Detector"
	Description  string
	Capabilities []string
}

// Result holds the outcome of a scaffold generation.
type Result struct {
	OutputDir string
	Files     []string
	Warnings  []string
}

// NewData creates a Data with derived fields populated.
func NewData(name string, t manifest.AddOnType) *Data {
	title := cases.Title(language.English)
	return &Data{
		Name:         name,
		Type:         t,
		Version:      "0.1.0",
		DisplayName:  title.String(strings.ReplaceAll(name, "-", " ")),
		Description:  fmt.Sprintf("%s %s add-on", name, t),
		Capabilities: defaultCapabilities[t],
	}
}

// Generate writes a new add-on package into outputDir, which must be empty
// or absent.
func Generate(data *Data, outputDir string) (*Result, error) {
	if !data.Type.Valid() {
		return nil, fmt.Errorf("unknown add-on type %q", data.Type)
	}
	templatesDir := path.Join("templates", string(data.Type))

	entries, err := fs.ReadDir(templateFS, templatesDir)
	if err != nil {
		return nil, fmt.Errorf("template set %q not found: %w", data.Type, err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	// Refuse to overwrite existing work.
	existing, err := os.ReadDir(outputDir)
	if err == nil && len(existing) > 0 {
		return nil, fmt.Errorf("output directory %s is not empty; remove existing files first", outputDir)
	}

	result := &Result{OutputDir: outputDir}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		tmplPath := path.Join(templatesDir, entry.Name())
		tmplBytes, err := fs.ReadFile(templateFS, tmplPath)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", tmplPath, err)
		}

		outName := strings.TrimSuffix(entry.Name(), ".tmpl")
		outPath := filepath.Join(outputDir, outName)

		tmpl, err := template.New(entry.Name()).Parse(string(tmplBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("executing template %s: %w", entry.Name(), err)
		}

		if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", outPath, err)
		}

		result.Files = append(result.Files, outName)
	}

	// Validate the generated manifest against the JSON Schema.
	valResult, err := manifest.ValidateFile(filepath.Join(outputDir, "manifest.yaml"))
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Could not validate manifest: %v", err))
	} else if !valResult.Valid {
		for _, issue := range valResult.Issues {
			msg := issue.Message
			if issue.Path != "" {
				msg = issue.Path + ": " + msg
			}
			result.Warnings = append(result.Warnings, msg)
		}
	}

	return result, nil
}
