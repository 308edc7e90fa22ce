package manifest

import "strings"

// AddOnType classifies an add-on by the role it plays for the host.
type AddOnType string

// Add-on types.
const (
	TypeDetector   AddOnType = "detector"
	TypeExecutor   AddOnType = "executor"
	TypeController AddOnType = "controller"
)

// ValidTypes contains all valid add-on type values.
var ValidTypes = []AddOnType{
	TypeDetector,
	TypeExecutor,
	TypeController,
}

// Valid reports whether t is one of ValidTypes.
func (t AddOnType) Valid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// BuiltinPrefix marks an entry point that names a Go-native module
// registered with the host instead of a file in the package.
const BuiltinPrefix = "builtin:"

// Manifest is the metadata file at the root of every add-on package.
type Manifest struct {
	Name         string     `yaml:"name" json:"name"`
	Type         AddOnType  `yaml:"type" json:"type"`
	Version      string     `yaml:"version" json:"version"`
	Description  string     `yaml:"description,omitempty" json:"description,omitempty"`
	DisplayName  string     `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	IconURL      string     `yaml:"iconURL,omitempty" json:"iconURL,omitempty"`
	Entry        string     `yaml:"entry" json:"entry"`
	Capabilities []string   `yaml:"capabilities" json:"capabilities"`
	Software     []Software `yaml:"software,omitempty" json:"software,omitempty"`
}

// IsBuiltin reports whether the entry point names a registered Go module.
func (m *Manifest) IsBuiltin() bool {
	return strings.HasPrefix(m.Entry, BuiltinPrefix)
}

// BuiltinID returns the builtin module id, or "" for file entry points.
func (m *Manifest) BuiltinID() string {
	if !m.IsBuiltin() {
		return ""
	}
	return strings.TrimPrefix(m.Entry, BuiltinPrefix)
}

// Software is an external program an executor add-on drives.
type Software struct {
	Name         string       `yaml:"name" json:"name"`
	URL          string       `yaml:"url,omitempty" json:"url,omitempty"`
	Homepage     string       `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	DownloadType string       `yaml:"downloadType,omitempty" json:"downloadType,omitempty"`
	Executables  []Executable `yaml:"executables,omitempty" json:"executables,omitempty"`
}

// Executable is one binary provided by a Software entry.
type Executable struct {
	Name          string `yaml:"name" json:"name"`
	Path          string `yaml:"path" json:"path"`
	Arch          string `yaml:"arch,omitempty" json:"arch,omitempty"`
	OS            string `yaml:"os,omitempty" json:"os,omitempty"`
	UserInstalled bool   `yaml:"userInstalled,omitempty" json:"userInstalled,omitempty"`
}
