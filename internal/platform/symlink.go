package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/keyhub-labs/keyhub/internal/branding"
)

// sidecarSuffix marks a copied directory that stands in for a symlink.
const sidecarSuffix = ".target"

// CreateSymlink creates link pointing at the directory target.
// On Unix systems, this uses os.Symlink directly.
// On Windows, it attempts os.Symlink first (requires developer mode),
// then falls back to copying the tree and writing a .target sidecar.
func CreateSymlink(target, link string) error {
	if runtime.GOOS != "windows" {
		return os.Symlink(target, link)
	}

	if err := os.Symlink(target, link); err == nil {
		return nil
	}

	resolved := target
	if !filepath.IsAbs(target) {
		resolved = filepath.Join(filepath.Dir(link), target)
	}
	if err := CopyTree(context.Background(), resolved, link, nil); err != nil {
		os.RemoveAll(link)
		return fmt.Errorf("symlink fallback (copy) failed: %w", err)
	}

	// The copy is usable without the sidecar; it only loses the link marker.
	_ = os.WriteFile(link+sidecarSuffix, []byte(target), 0644)
	return nil
}

// RemoveSymlink removes a symlink, or its fallback copy and sidecar. The
// link target is never touched.
func RemoveSymlink(path string) error {
	var err error
	if _, serr := os.Stat(path + sidecarSuffix); serr == nil {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	os.Remove(path + sidecarSuffix) // best-effort
	return err
}

// IsSymlink reports whether path is a symlink or a fallback copy.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return true
	}
	_, err = os.Stat(path + sidecarSuffix)
	return err == nil
}

// ReadSymlinkTarget returns the target of a symlink.
// On Windows, if os.Readlink fails (because a copy fallback was used),
// it reads from the .target sidecar file.
func ReadSymlinkTarget(path string) (string, error) {
	target, err := os.Readlink(path)
	if err == nil {
		return target, nil
	}

	data, readErr := os.ReadFile(path + sidecarSuffix)
	if readErr != nil {
		if errors.Is(readErr, fs.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("readlink failed and the .target sidecar is unreadable: %w", readErr)
	}
	return strings.TrimSpace(string(data)), nil
}

// IsSymlinkSupported returns true if the current platform supports native symlinks.
// On Windows this attempts a test symlink to check developer mode.
func IsSymlinkSupported() bool {
	if runtime.GOOS != "windows" {
		return true
	}

	tmpDir := os.TempDir()
	link := filepath.Join(tmpDir, "."+branding.CLIName()+"-symlink-test")
	defer os.Remove(link)

	return os.Symlink(tmpDir, link) == nil
}
