package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/keyhub-labs/keyhub/internal/capability"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/manifest.schema.json
var schemaBytes []byte

const schemaURL = "manifest.schema.json"

// printer renders schema failures in English.
var printer = message.NewPrinter(language.English)

// ValidationResult contains the outcome of a validation.
type ValidationResult struct {
	Valid  bool
	Issues []ValidationIssue
}

// ValidationIssue is one violated rule.
type ValidationIssue struct {
	Path    string // Instance location (e.g., "/name", "/capabilities/0")
	Message string // Human-readable error message
	Keyword string // Schema keyword location that failed
}

// Summary renders the issues as a single line.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return strings.Join(parts, "; ")
}

// manifestSchema compiles the embedded JSON schema on first use.
var manifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("decoding embedded schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("registering schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return sch, nil
})

// Validate checks a YAML (or JSON) manifest document against the schema.
// The error return covers undecodable input and schema failures; rule
// violations are reported in the result.
func Validate(data []byte) (*ValidationResult, error) {
	sch, err := manifestSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	// Round-trip through JSON so numbers reach the validator as json.Number.
	encoded, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return nil, fmt.Errorf("encoding manifest as JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding manifest JSON: %w", err)
	}

	verr := sch.Validate(inst)
	if verr == nil {
		return &ValidationResult{Valid: true}, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(verr, &ve) {
		return nil, fmt.Errorf("validating manifest: %w", verr)
	}
	return &ValidationResult{Issues: leafIssues(ve)}, nil
}

// ValidateFile reads a file and validates it against the manifest schema.
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return Validate(data)
}

// Check runs the semantic rules the schema cannot express: a parseable
// semantic version, an entry point that stays inside the package, and
// well-formed, unique capability paths.
func Check(m *Manifest) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, keyword, format string, args ...interface{}) {
		issues = append(issues, ValidationIssue{Path: path, Keyword: keyword, Message: fmt.Sprintf(format, args...)})
	}

	if !m.Type.Valid() {
		add("/type", "enum", "unknown add-on type %q", m.Type)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		add("/version", "semver", "%q is not a semantic version: %v", m.Version, err)
	}

	switch {
	case m.Entry == "":
		add("/entry", "required", "entry point is required")
	case m.IsBuiltin():
		if m.BuiltinID() == "" {
			add("/entry", "builtin", "builtin entry point has no module id")
		}
	case !filepath.IsLocal(filepath.FromSlash(m.Entry)):
		add("/entry", "local", "entry point %q must be a relative path inside the package", m.Entry)
	}

	if len(m.Capabilities) == 0 {
		add("/capabilities", "minItems", "at least one capability must be declared")
	}
	seen := make(map[string]bool, len(m.Capabilities))
	for i, raw := range m.Capabilities {
		p, err := capability.ParsePath(raw)
		if err != nil {
			add(fmt.Sprintf("/capabilities/%d", i), "pattern", "%v", err)
			continue
		}
		key := p.String()
		if seen[key] {
			add(fmt.Sprintf("/capabilities/%d", i), "uniqueItems", "capability %q declared twice", key)
		}
		seen[key] = true
	}

	for i, sw := range m.Software {
		if sw.Name == "" {
			add(fmt.Sprintf("/software/%d/name", i), "required", "software name is required")
		}
	}

	return issues
}

// structuralKeywords only group other failures.
var structuralKeywords = map[string]bool{"": true, "$ref": true, "allOf": true, "anyOf": true, "oneOf": true}

// leafIssues flattens the cause tree into one issue per failing rule.
func leafIssues(root *jsonschema.ValidationError) []ValidationIssue {
	var issues []ValidationIssue
	seen := make(map[ValidationIssue]bool)

	stack := []*jsonschema.ValidationError{root}
	for len(stack) > 0 {
		ve := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(ve.Causes) > 0 {
			for i := len(ve.Causes) - 1; i >= 0; i-- {
				stack = append(stack, ve.Causes[i])
			}
			continue
		}
		if ve.ErrorKind == nil {
			continue
		}

		var keyword string
		if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
			keyword = kw[len(kw)-1]
		}
		if structuralKeywords[keyword] {
			continue
		}

		issue := ValidationIssue{
			Path:    pointer(ve.InstanceLocation),
			Message: ve.ErrorKind.LocalizedString(printer),
			Keyword: keyword,
		}
		if !seen[issue] {
			seen[issue] = true
			issues = append(issues, issue)
		}
	}

	if len(issues) == 0 {
		issues = append(issues, ValidationIssue{Message: root.Error()})
	}
	return issues
}

// pointer renders an instance location as a JSON pointer; the document
// root is "".
func pointer(loc []string) string {
	if len(loc) == 0 {
		return ""
	}
	return "/" + strings.Join(loc, "/")
}

// jsonCompatible converts decoded YAML into values encoding/json accepts.
// Mappings with non-string keys are keyed by their printed form.
func jsonCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = jsonCompatible(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = jsonCompatible(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = jsonCompatible(e)
		}
		return out
	default:
		return val
	}
}
