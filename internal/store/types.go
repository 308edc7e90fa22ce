package store

import (
	"slices"
	"strings"
	"time"

	"github.com/keyhub-labs/keyhub/internal/manifest"
)

// AddOn is the registry record of one installed add-on.
type AddOn struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Type         manifest.AddOnType `json:"type"`
	Version      string             `json:"version"`
	Description  string             `json:"description,omitempty"`
	DisplayName  string             `json:"displayName,omitempty"`
	IconURL      string             `json:"iconURL,omitempty"`
	Entry        string             `json:"entry"`
	PackageDir   string             `json:"packageDir"`
	InstallPath  string             `json:"installPath"`
	IsLink       bool               `json:"isLink"`
	Capabilities []string           `json:"capabilities"`
	Size         int64              `json:"size"`
	Pending      Pending            `json:"pending,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Pending marks a record written by a scoped reindex that the next full
// reindex has not reported yet.
type Pending string

const (
	PendingNone    Pending = ""
	PendingAdded   Pending = "added"
	PendingUpdated Pending = "updated"
)

// SameInstall reports whether a and b describe the same installed package.
// Identity, size, pending state, and timestamps are ignored.
func (a AddOn) SameInstall(b AddOn) bool {
	return a.Name == b.Name &&
		a.Type == b.Type &&
		a.Version == b.Version &&
		a.Description == b.Description &&
		a.DisplayName == b.DisplayName &&
		a.IconURL == b.IconURL &&
		a.Entry == b.Entry &&
		a.PackageDir == b.PackageDir &&
		a.InstallPath == b.InstallPath &&
		a.IsLink == b.IsLink &&
		slices.Equal(a.Capabilities, b.Capabilities)
}

// Software is an external program declared by an add-on.
type Software struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	OwnerName    string       `json:"ownerName"`
	URL          string       `json:"url,omitempty"`
	Homepage     string       `json:"homepage,omitempty"`
	DownloadType string       `json:"downloadType"`
	Installed    bool         `json:"installed"`
	Executables  []Executable `json:"executables,omitempty"`
}

// Executable is one binary of a Software entry.
type Executable struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	Arch          string `json:"arch,omitempty"`
	OS            string `json:"os,omitempty"`
	UserInstalled bool   `json:"userInstalled"`
	SoftwareID    string `json:"softwareId"`
}

// ExecutableRow is an executable joined with the software that owns it.
type ExecutableRow struct {
	Executable
	SoftwareName string `json:"softwareName"`
	OwnerName    string `json:"ownerName"`
}

// SoftwareFromManifest converts the manifest declarations of owner into
// store records. IDs are assigned on write.
func SoftwareFromManifest(owner string, decl []manifest.Software) []Software {
	out := make([]Software, 0, len(decl))
	for _, d := range decl {
		sw := Software{
			Name:         d.Name,
			OwnerName:    owner,
			URL:          d.URL,
			Homepage:     d.Homepage,
			DownloadType: d.DownloadType,
		}
		if sw.DownloadType == "" {
			sw.DownloadType = "none"
		}
		for _, e := range d.Executables {
			sw.Executables = append(sw.Executables, Executable{
				Name:          e.Name,
				Path:          e.Path,
				Arch:          e.Arch,
				OS:            e.OS,
				UserInstalled: e.UserInstalled,
			})
		}
		out = append(out, sw)
	}
	return out
}

// SameSoftware reports whether two declarations match, ignoring ids, order,
// and install state.
func SameSoftware(a, b []Software) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = sortedSoftware(a), sortedSoftware(b)
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name || x.URL != y.URL || x.Homepage != y.Homepage || x.DownloadType != y.DownloadType {
			return false
		}
		if len(x.Executables) != len(y.Executables) {
			return false
		}
		for j := range x.Executables {
			e, f := x.Executables[j], y.Executables[j]
			if e.Name != f.Name || e.Path != f.Path || e.Arch != f.Arch || e.OS != f.OS || e.UserInstalled != f.UserInstalled {
				return false
			}
		}
	}
	return true
}

func sortedSoftware(in []Software) []Software {
	out := make([]Software, len(in))
	for i, sw := range in {
		sw.Executables = slices.Clone(sw.Executables)
		slices.SortFunc(sw.Executables, func(x, y Executable) int { return strings.Compare(x.Name, y.Name) })
		out[i] = sw
	}
	slices.SortFunc(out, func(x, y Software) int { return strings.Compare(x.Name, y.Name) })
	return out
}
