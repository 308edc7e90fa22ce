package fetcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/keyhub-labs/keyhub/internal/errcode"
)

// Fetcher resolves a package name and version to a package directory on the
// local filesystem. Cleanup releases anything the fetch created; it is never
// nil and is safe to call more than once.
type Fetcher interface {
	Fetch(ctx context.Context, name, version string) (dir string, cleanup func(), err error)
}

// Local resolves sources that are already directories on disk.
type Local struct{}

// Fetch returns the absolute form of name, which must be a directory.
// version is ignored.
func (Local) Fetch(ctx context.Context, name, _ string) (string, func(), error) {
	if err := ctx.Err(); err != nil {
		return "", noop, err
	}
	dir, err := filepath.Abs(name)
	if err != nil {
		return "", noop, errcode.Wrap(errcode.FetchFailure, err, "resolving %s", name)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", noop, errcode.Wrap(errcode.FetchFailure, err, "local package %s", name)
	}
	if !info.IsDir() {
		return "", noop, errcode.New(errcode.FetchFailure, "local package %s is not a directory", dir)
	}
	return dir, noop, nil
}

// Unavailable is used when no remote package index is configured.
type Unavailable struct{}

// Fetch always fails.
func (Unavailable) Fetch(_ context.Context, name, _ string) (string, func(), error) {
	return "", noop, errcode.New(errcode.FetchFailure,
		"cannot fetch %s: no package index configured (set fetch.url or install from a local path)", name)
}

func noop() {}

// onceCleanup wraps fn so repeated calls run it once.
func onceCleanup(fn func()) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		fn()
	}
}
