package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/fetcher"
	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/platform"
	"github.com/keyhub-labs/keyhub/internal/reconcile"
	"github.com/keyhub-labs/keyhub/internal/store"
	"go.uber.org/zap"
)

// StagingPrefix starts the name of every in-flight install directory. The
// reconciler ignores dot-entries, so staging dirs are never indexed.
const StagingPrefix = ".staging-"

// excludePatterns are paths left out when a package is copied.
var excludePatterns = []string{
	".git",
	"**/.git",
	"node_modules",
	"**/node_modules",
	"**/.DS_Store",
}

// Options control a single install.
type Options struct {
	// UseLink symlinks the package directory instead of copying it.
	UseLink bool
	// Local treats source as a path on disk, never as a package name.
	Local bool
	// Version constrains the release when source is fetched by name.
	Version string
	// Force replaces an add-on that is already installed.
	Force bool
}

// Installer places add-on packages under the add-ons directory and keeps
// the registry store in step.
type Installer struct {
	store       *store.Store
	reconciler  *reconcile.Reconciler
	addonsDir   string
	softwareDir string
	fetcher     fetcher.Fetcher
	log         *zap.Logger
}

// New returns an installer. A nil fetcher means only local sources can be
// installed.
func New(s *store.Store, r *reconcile.Reconciler, addonsDir, softwareDir string, f fetcher.Fetcher, log *zap.Logger) *Installer {
	if f == nil {
		f = fetcher.Unavailable{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Installer{
		store:       s,
		reconciler:  r,
		addonsDir:   addonsDir,
		softwareDir: softwareDir,
		fetcher:     f,
		log:         log.Named("add-ons:installer"),
	}
}

// Install places the package named by source and records it. Source is a
// local directory or a package name resolved through the fetcher. The
// package lands in <addons>/<manifest name>. A copy is staged next to its
// destination and renamed into place, so a failed or cancelled install
// leaves no package directory behind.
func (i *Installer) Install(ctx context.Context, source string, opts Options) (store.AddOn, error) {
	srcDir, cleanup, err := i.resolve(ctx, source, opts)
	if err != nil {
		return store.AddOn{}, err
	}
	defer cleanup()

	m, err := manifest.Load(srcDir)
	if err != nil {
		return store.AddOn{}, err
	}

	log := i.log.With(zap.String("addon", m.Name), zap.String("version", m.Version))

	if err := os.MkdirAll(i.addonsDir, 0755); err != nil {
		return store.AddOn{}, fmt.Errorf("creating %s: %w", i.addonsDir, err)
	}

	dest := filepath.Join(i.addonsDir, m.Name)
	exists, err := pathExists(dest)
	if err != nil {
		return store.AddOn{}, err
	}
	if exists && !opts.Force {
		return store.AddOn{}, errcode.New(errcode.AlreadyInstalled,
			"add-on %s is already installed at %s (use --force to replace it)", m.Name, dest)
	}

	if opts.UseLink {
		err = i.link(srcDir, dest, exists)
	} else {
		err = i.copy(ctx, m.Name, srcDir, dest, exists)
	}
	if err != nil {
		return store.AddOn{}, err
	}

	if err := os.MkdirAll(filepath.Join(i.softwareDir, m.Name), 0755); err != nil {
		return store.AddOn{}, fmt.Errorf("creating software folder for %s: %w", m.Name, err)
	}

	rec, err := i.reconciler.ReindexOne(ctx, m.Name)
	if err != nil {
		log.Warn("package placed but not indexed; the next reindex will pick it up", zap.Error(err))
		return store.AddOn{}, err
	}

	log.Info("add-on installed", zap.Bool("link", rec.IsLink), zap.String("path", rec.PackageDir))
	return rec, nil
}

// resolve turns source into a package directory on disk.
func (i *Installer) resolve(ctx context.Context, source string, opts Options) (string, func(), error) {
	if opts.Local || opts.UseLink {
		return fetcher.Local{}.Fetch(ctx, source, opts.Version)
	}
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return fetcher.Local{}.Fetch(ctx, source, opts.Version)
	}
	return i.fetcher.Fetch(ctx, source, opts.Version)
}

func (i *Installer) link(srcDir, dest string, replace bool) error {
	abs, err := filepath.Abs(srcDir)
	if err != nil {
		return err
	}
	if replace {
		if err := removePackage(dest); err != nil {
			return err
		}
	}
	if err := platform.CreateSymlink(abs, dest); err != nil {
		return fmt.Errorf("linking %s to %s: %w", dest, abs, err)
	}
	return nil
}

func (i *Installer) copy(ctx context.Context, name, srcDir, dest string, replace bool) (err error) {
	staging, err := os.MkdirTemp(i.addonsDir, StagingPrefix+name+"-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(staging)
		}
	}()

	if err = platform.CopyTree(ctx, srcDir, staging, excluded); err != nil {
		return fmt.Errorf("copying %s: %w", srcDir, err)
	}
	if err = platform.ShareTree(staging); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	if replace {
		if err = removePackage(dest); err != nil {
			return err
		}
	}
	if err = os.Rename(staging, dest); err != nil {
		return fmt.Errorf("moving package into %s: %w", dest, err)
	}
	return nil
}

// Uninstall deletes the add-on called name from disk and from the store.
// The two halves are not transactional: if either fails, the next full
// reindex reconciles whatever remains.
func (i *Installer) Uninstall(ctx context.Context, name string) error {
	rec, err := i.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errcode.Wrap(errcode.NotInRegistry, err, "cannot uninstall %s", name)
		}
		return errcode.Wrap(errcode.DBLoadFailure, err, "looking up %s", name)
	}

	dir := rec.PackageDir
	if dir == "" {
		dir = filepath.Join(i.addonsDir, name)
	}

	var fsErr error
	if rec.IsLink || platform.IsSymlink(dir) {
		if err := platform.RemoveSymlink(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fsErr = fmt.Errorf("unlinking %s: %w", dir, err)
		}
	} else if err := os.RemoveAll(dir); err != nil {
		fsErr = fmt.Errorf("removing %s: %w", dir, err)
	}
	if err := os.RemoveAll(filepath.Join(i.softwareDir, name)); err != nil && fsErr == nil {
		fsErr = fmt.Errorf("removing software folder of %s: %w", name, err)
	}
	if fsErr != nil {
		i.log.Warn("package files not fully removed", zap.String("addon", name), zap.Error(fsErr))
		return fsErr
	}

	if err := i.store.Remove(ctx, name); err != nil {
		return errcode.Wrap(errcode.DBLoadFailure, err, "removing record of %s", name)
	}

	i.log.Info("add-on uninstalled", zap.String("addon", name))
	return nil
}

// excluded reports whether rel matches one of excludePatterns.
func excluded(rel string, _ bool) bool {
	for _, pattern := range excludePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// removePackage deletes an installed package, link or copy.
func removePackage(dir string) error {
	if platform.IsSymlink(dir) {
		if err := platform.RemoveSymlink(dir); err != nil {
			return fmt.Errorf("unlinking %s: %w", dir, err)
		}
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("inspecting %s: %w", path, err)
}
