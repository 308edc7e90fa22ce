package platform

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ExcludeFunc reports whether the entry at rel (slash-separated, relative
// to the copy root) should be skipped.
type ExcludeFunc func(rel string, isDir bool) bool

// CopyTree recursively copies the directory src to dst, preserving file
// modes. Symlinks and special files inside src are skipped. The copy stops
// with ctx.Err() when ctx is cancelled; the caller removes the partial dst.
func CopyTree(ctx context.Context, src, dst string, exclude ExcludeFunc) error {
	return copyDir(ctx, src, dst, "", exclude)
}

func copyDir(ctx context.Context, src, dst, rel string, exclude ExcludeFunc) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()|0700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		childRel := entry.Name()
		if rel != "" {
			childRel = rel + "/" + entry.Name()
		}
		if exclude != nil && exclude(childRel, entry.IsDir()) {
			continue
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.IsDir():
			if err := copyDir(ctx, srcPath, dstPath, childRel, exclude); err != nil {
				return err
			}
		case entry.Type().IsRegular():
			if err := copyFile(srcPath, dstPath); err != nil {
				return fmt.Errorf("copying %s: %w", childRel, err)
			}
		}
	}

	return nil
}

// copyFile copies a single file from src to dst, preserving permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
