package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/platform"
	"github.com/keyhub-labs/keyhub/internal/store"
	"go.uber.org/zap"
)

// Diff is the outcome of a reindex pass.
type Diff struct {
	Added    []string  `json:"added"`
	Updated  []string  `json:"updated"`
	Removed  []string  `json:"removed"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Empty reports whether the pass changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Warning reports a package directory that was skipped.
type Warning struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Name, w.Err)
}

// Reconciler keeps the registry store in step with the add-ons directory.
type Reconciler struct {
	store     *store.Store
	addonsDir string
	log       *zap.Logger
}

// New returns a reconciler for the packages under addonsDir.
func New(s *store.Store, addonsDir string, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:     s,
		addonsDir: addonsDir,
		log:       log.Named("add-ons:reconcile"),
	}
}

// Reindex scans every immediate subdirectory of the add-ons directory and
// brings the store in line with it. The diff covers every change since the
// previous full pass, including records written by ReindexOne in between.
// Packages whose manifest cannot be read are reported as warnings and their
// records are left alone; a record is removed only when its directory no
// longer exists or is a link whose target has been deleted. The whole pass
// runs under the store's write lock.
func (r *Reconciler) Reindex(ctx context.Context) (Diff, error) {
	diff := Diff{Added: []string{}, Updated: []string{}, Removed: []string{}}

	err := r.store.Batch(ctx, func(tx *store.Tx) error {
		records, err := tx.List(ctx)
		if err != nil {
			return err
		}
		existing := make(map[string]store.AddOn, len(records))
		for _, rec := range records {
			existing[rec.Name] = rec
		}

		names, err := r.packageDirs()
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.gone(name) {
				continue
			}
			seen[name] = true

			rec, software, err := r.describe(name)
			if err != nil {
				diff.Warnings = append(diff.Warnings, Warning{Name: name, Err: err})
				r.log.Warn("skipping add-on", zap.String("addon", name), zap.Error(err))
				continue
			}
			if err := r.checkEntry(rec); err != nil {
				diff.Warnings = append(diff.Warnings, Warning{Name: name, Err: err})
			}

			old, known := existing[name]
			kind := store.PendingAdded
			if known {
				current, err := tx.ListSoftware(ctx, name)
				if err != nil {
					return err
				}
				changed := !old.SameInstall(rec) || !store.SameSoftware(current, software)
				switch {
				case old.Pending == store.PendingAdded:
					// indexed by ReindexOne since the last pass
				case changed || old.Pending == store.PendingUpdated:
					kind = store.PendingUpdated
				default:
					continue
				}
				rec.ID = old.ID
			}

			if _, err := tx.Upsert(ctx, rec); err != nil {
				return err
			}
			if err := tx.ReplaceSoftware(ctx, name, software); err != nil {
				return err
			}

			if kind == store.PendingAdded {
				diff.Added = append(diff.Added, name)
				r.log.Debug("add-on added", zap.String("addon", name), zap.String("version", rec.Version))
			} else {
				diff.Updated = append(diff.Updated, name)
				r.log.Debug("add-on updated", zap.String("addon", name), zap.String("version", rec.Version))
			}
		}

		for name := range existing {
			if seen[name] || !r.gone(name) {
				continue
			}
			if err := tx.Remove(ctx, name); err != nil {
				return err
			}
			diff.Removed = append(diff.Removed, name)
			r.log.Debug("add-on removed", zap.String("addon", name))
		}
		return nil
	})
	if err != nil {
		return Diff{}, fmt.Errorf("reindexing %s: %w", r.addonsDir, err)
	}

	sort.Strings(diff.Removed)
	r.log.Info("reindex complete",
		zap.Int("added", len(diff.Added)),
		zap.Int("updated", len(diff.Updated)),
		zap.Int("removed", len(diff.Removed)),
		zap.Int("warnings", len(diff.Warnings)),
	)
	return diff, nil
}

// ReindexOne records the package in the add-ons directory called name. It
// only inserts or updates; it never removes records. The record stays
// marked pending until the next full Reindex reports it.
func (r *Reconciler) ReindexOne(ctx context.Context, name string) (store.AddOn, error) {
	rec, software, err := r.describe(name)
	if err != nil {
		return store.AddOn{}, err
	}
	_ = r.checkEntry(rec)

	var out store.AddOn
	err = r.store.Batch(ctx, func(tx *store.Tx) error {
		old, err := tx.Get(ctx, name)
		switch {
		case err == nil:
			rec.ID = old.ID
			rec.Pending = old.Pending
			if rec.Pending == store.PendingNone {
				current, err := tx.ListSoftware(ctx, name)
				if err != nil {
					return err
				}
				if !old.SameInstall(rec) || !store.SameSoftware(current, software) {
					rec.Pending = store.PendingUpdated
				}
			}
		case errors.Is(err, store.ErrNotFound):
			rec.Pending = store.PendingAdded
		default:
			return err
		}

		if out, err = tx.Upsert(ctx, rec); err != nil {
			return err
		}
		return tx.ReplaceSoftware(ctx, name, software)
	})
	if err != nil {
		return store.AddOn{}, fmt.Errorf("indexing %s: %w", name, err)
	}

	r.log.Debug("add-on indexed", zap.String("addon", name), zap.String("version", out.Version))
	return out, nil
}

// packageDirs lists candidate package directory names in lexical order.
// Dot-entries (including in-flight install staging dirs) are ignored.
func (r *Reconciler) packageDirs() ([]string, error) {
	entries, err := os.ReadDir(r.addonsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.addonsDir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// gone reports whether the package called name is absent on disk. A link
// whose target no longer resolves counts as absent.
func (r *Reconciler) gone(name string) bool {
	dir := filepath.Join(r.addonsDir, name)
	lst, err := os.Lstat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil || lst.Mode()&fs.ModeSymlink == 0 {
		return false
	}
	_, err = os.Stat(dir)
	return errors.Is(err, fs.ErrNotExist)
}

// checkEntry warns when the entry point of a script add-on is missing. The
// record is still indexed; loading it reports LoadFailure.
func (r *Reconciler) checkEntry(rec store.AddOn) error {
	if rec.InstallPath == rec.PackageDir {
		return nil
	}
	if _, err := os.Stat(rec.InstallPath); err != nil {
		err = errcode.Wrap(errcode.LoadFailure, err, "entry point %s of %s", rec.Entry, rec.Name)
		r.log.Warn("add-on entry point missing", zap.String("addon", rec.Name), zap.Error(err))
		return err
	}
	return nil
}

// describe builds the store record for the package directory called name.
func (r *Reconciler) describe(name string) (store.AddOn, []store.Software, error) {
	dir, err := filepath.Abs(filepath.Join(r.addonsDir, name))
	if err != nil {
		return store.AddOn{}, nil, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return store.AddOn{}, nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if !info.IsDir() {
		return store.AddOn{}, nil, fmt.Errorf("%s is not a directory", dir)
	}

	m, err := manifest.Load(dir)
	if err != nil {
		return store.AddOn{}, nil, err
	}
	if m.Name != name {
		return store.AddOn{}, nil, errcode.New(errcode.InvalidManifest,
			"directory %s holds add-on %q; the directory must be named after the add-on", dir, m.Name)
	}

	installPath := dir
	if !m.IsBuiltin() {
		installPath = filepath.Join(dir, filepath.FromSlash(m.Entry))
	}

	rec := store.AddOn{
		Name:         m.Name,
		Type:         m.Type,
		Version:      m.Version,
		Description:  m.Description,
		DisplayName:  m.DisplayName,
		IconURL:      m.IconURL,
		Entry:        m.Entry,
		PackageDir:   dir,
		InstallPath:  installPath,
		IsLink:       platform.IsSymlink(dir),
		Capabilities: m.Capabilities,
		Size:         r.packageSize(dir),
	}
	return rec, store.SoftwareFromManifest(m.Name, m.Software), nil
}

// packageSize sums the sizes of the regular files under dir. It is
// informational only, so walk errors are logged and ignored.
func (r *Reconciler) packageSize(dir string) int64 {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return 0
	}

	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && (d.Name() == ".git" || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		r.log.Debug("package size walk failed", zap.String("dir", dir), zap.Error(err))
	}
	return total.Load()
}
