package platform

import (
	"io/fs"
	"os"
	"runtime"

	"github.com/charlievieth/fastwalk"
)

// Chmod sets file permissions. On Windows this is a no-op because Windows
// does not support Unix-style permission bits.
func Chmod(path string, mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, mode)
}

// ShareTree makes root and everything below it readable by every user of
// the registry: directories become 0755 at least, files gain group and
// other read bits, and files executable by their owner stay executable
// for everyone. Symlinks are not followed. No-op on Windows.
func ShareTree(root string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := Chmod(root, 0755); err != nil {
		return err
	}

	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return Chmod(path, sharedMode(info.Mode(), d.IsDir()))
	})
}

func sharedMode(mode fs.FileMode, isDir bool) fs.FileMode {
	perm := mode.Perm()
	if isDir {
		return perm | 0755
	}
	perm |= 0644
	if perm&0100 != 0 {
		perm |= 0011
	}
	return perm
}
