package manifest

import (
	"testing"
)

func TestValidateFile_Valid(t *testing.T) {
	for _, file := range []string{"valid.yaml", "echo-detector/manifest.yaml", "json-executor/manifest.json"} {
		t.Run(file, func(t *testing.T) {
			result, err := ValidateFile(testPath(file))
			if err != nil {
				t.Fatalf("ValidateFile(%s) error: %v", file, err)
			}
			if !result.Valid {
				t.Errorf("expected valid, got %s", result.Summary())
			}
		})
	}
}

func TestValidateFile_InvalidManifests(t *testing.T) {
	invalidFiles := []struct {
		file string
		desc string
	}{
		{"invalid-missing-name.yaml", "missing required name field"},
		{"invalid-bad-type.yaml", "invalid type value"},
		{"invalid-bad-name-pattern.yaml", "name violates pattern"},
		{"invalid-no-capabilities.yaml", "empty capability list"},
		{"invalid-bad-capability.yaml", "malformed capability path"},
	}

	for _, tt := range invalidFiles {
		t.Run(tt.file, func(t *testing.T) {
			result, err := ValidateFile(testPath(tt.file))
			if err != nil {
				t.Fatalf("ValidateFile(%s) unexpected error: %v", tt.file, err)
			}
			if result.Valid {
				t.Errorf("expected invalid for %s (%s), but got valid", tt.file, tt.desc)
			}
			if len(result.Issues) == 0 {
				t.Errorf("expected at least one issue for %s (%s)", tt.file, tt.desc)
			}
		})
	}
}

func TestValidateFile_InvalidYAML(t *testing.T) {
	_, err := ValidateFile(testPath("invalid-not-yaml.yaml"))
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestValidate_IssueFields(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-bad-name-pattern.yaml"))
	if err != nil {
		t.Fatalf("ValidateFile error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Path == "/name" && issue.Keyword == "pattern" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a /name pattern issue, got %+v", result.Issues)
	}
}

func TestCheck_DuplicateCapabilities(t *testing.T) {
	m := &Manifest{
		Name:         "a",
		Type:         TypeController,
		Version:      "1.0.0",
		Entry:        "index.js",
		Capabilities: []string{"run", "run"},
	}
	issues := Check(m)
	if len(issues) != 1 || issues[0].Keyword != "uniqueItems" {
		t.Fatalf("Check = %+v, want one uniqueItems issue", issues)
	}
}

func TestCheck_Clean(t *testing.T) {
	m := &Manifest{
		Name:         "a",
		Type:         TypeController,
		Version:      "2.0.0-beta.1",
		Entry:        "lib/index.js",
		Capabilities: []string{"setup.setupNewClient.setup"},
	}
	if issues := Check(m); len(issues) != 0 {
		t.Fatalf("Check = %+v, want none", issues)
	}
}
