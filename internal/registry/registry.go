package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keyhub-labs/keyhub/internal/branding"
	"github.com/keyhub-labs/keyhub/internal/capability"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/fetcher"
	"github.com/keyhub-labs/keyhub/internal/installer"
	"github.com/keyhub-labs/keyhub/internal/loader"
	"github.com/keyhub-labs/keyhub/internal/logging"
	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/reconcile"
	"github.com/keyhub-labs/keyhub/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Directory names under the registry root.
const (
	AddOnsDirName   = "addons"
	SoftwareDirName = "software"
)

// Options configure a Registry.
type Options struct {
	Logger *zap.Logger
	// Fetcher resolves package names on install. Nil allows local installs only.
	Fetcher fetcher.Fetcher
	// Builtins resolves "builtin:<id>" entry points.
	Builtins *loader.Builtins
	// Registerer receives the capability call metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
	// CacheHandles reuses loaded handles while records are unchanged.
	CacheHandles bool
}

// Registry is one registry root: its store, add-ons directory, and the
// components that operate on them.
type Registry struct {
	root        string
	addonsDir   string
	softwareDir string

	store      *store.Store
	reconciler *reconcile.Reconciler
	installer  *installer.Installer
	loader     *loader.Loader
	gateway    *capability.Gateway
	log        *zap.Logger
}

// Create initializes the registry at root, creating its directories and
// database as needed. It is safe on an existing registry.
func Create(ctx context.Context, root string, opts Options) (*Registry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving registry root: %w", err)
	}
	for _, dir := range []string{abs, filepath.Join(abs, AddOnsDirName), filepath.Join(abs, SoftwareDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	s, err := store.Create(ctx, filepath.Join(abs, branding.RegistryDBName()), opts.Logger)
	if err != nil {
		return nil, err
	}
	return assemble(abs, s, opts), nil
}

// Open opens an existing registry. A root without a database fails with
// errcode.DBLoadFailure.
func Open(ctx context.Context, root string, opts Options) (*Registry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving registry root: %w", err)
	}
	s, err := store.Open(ctx, filepath.Join(abs, branding.RegistryDBName()), opts.Logger)
	if err != nil {
		return nil, err
	}
	return assemble(abs, s, opts), nil
}

func assemble(root string, s *store.Store, opts Options) *Registry {
	log := logging.OrNop(opts.Logger)
	addons := filepath.Join(root, AddOnsDirName)
	software := filepath.Join(root, SoftwareDirName)

	rec := reconcile.New(s, addons, log)

	loaderOpts := []loader.Option{loader.WithBuiltins(opts.Builtins)}
	if opts.CacheHandles {
		loaderOpts = append(loaderOpts, loader.WithCache())
	}

	return &Registry{
		root:        root,
		addonsDir:   addons,
		softwareDir: software,
		store:       s,
		reconciler:  rec,
		installer:   installer.New(s, rec, addons, software, opts.Fetcher, log),
		loader:      loader.New(s, log, loaderOpts...),
		gateway:     capability.NewGateway(log.Named("add-ons:gateway"), capability.NewMetrics(opts.Registerer)),
		log:         log.Named("add-ons"),
	}
}

// Root returns the absolute registry root.
func (r *Registry) Root() string { return r.root }

// AddOnsDir returns the directory holding installed packages.
func (r *Registry) AddOnsDir() string { return r.addonsDir }

// SoftwareDir returns the directory holding per add-on software folders.
func (r *Registry) SoftwareDir() string { return r.softwareDir }

// Gateway returns the gateway used by Call.
func (r *Registry) Gateway() *capability.Gateway { return r.gateway }

// Close releases the store.
func (r *Registry) Close() error { return r.store.Close() }

// Install installs the package named by source. See installer.Installer.
func (r *Registry) Install(ctx context.Context, source string, opts installer.Options) (store.AddOn, error) {
	rec, err := r.installer.Install(ctx, source, opts)
	if err != nil {
		return store.AddOn{}, err
	}
	r.loader.Invalidate(rec.Name)
	return rec, nil
}

// Uninstall removes the add-on called name.
func (r *Registry) Uninstall(ctx context.Context, name string) error {
	defer r.loader.Invalidate(name)
	return r.installer.Uninstall(ctx, name)
}

// Reindex brings the store in line with the add-ons directory.
func (r *Registry) Reindex(ctx context.Context) (reconcile.Diff, error) {
	diff, err := r.reconciler.Reindex(ctx)
	if err != nil {
		return diff, err
	}
	for _, names := range [][]string{diff.Updated, diff.Removed} {
		for _, name := range names {
			r.loader.Invalidate(name)
		}
	}
	return diff, nil
}

// LoadByName loads the add-on called name with the given context.
func (r *Registry) LoadByName(ctx context.Context, name string, lctx loader.Context) (*loader.Handle, error) {
	return r.loader.LoadByName(ctx, name, lctx)
}

// LoadByType loads every add-on of type t. Individual failures are reported
// in the batch.
func (r *Registry) LoadByType(ctx context.Context, t manifest.AddOnType, lctx loader.Context) (loader.Batch, error) {
	return r.loader.LoadByType(ctx, t, lctx)
}

// Call invokes the capability at path of a loaded add-on through the
// gateway.
func (r *Registry) Call(ctx context.Context, h *loader.Handle, path string, args ...any) (any, error) {
	c, err := h.Capability(path)
	if err != nil {
		r.log.Warn("capability not available", zap.String("addon", h.Name()), zap.String("capability", path), zap.Error(err))
		return nil, err
	}
	return r.gateway.Call(ctx, c, args...)
}

// Get returns the record for name. A missing record is errcode.NotInRegistry.
func (r *Registry) Get(ctx context.Context, name string) (store.AddOn, error) {
	rec, err := r.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return store.AddOn{}, errcode.Wrap(errcode.NotInRegistry, err, "add-on %s", name)
	}
	return rec, err
}

// List returns every record ordered by name.
func (r *Registry) List(ctx context.Context) ([]store.AddOn, error) {
	return r.store.List(ctx)
}

// ListByType returns the records of one type ordered by name.
func (r *Registry) ListByType(ctx context.Context, t manifest.AddOnType) ([]store.AddOn, error) {
	return r.store.ListByType(ctx, t)
}

// Software returns the software declared by owner, or by every add-on when
// owner is empty.
func (r *Registry) Software(ctx context.Context, owner string) ([]store.Software, error) {
	return r.store.ListSoftware(ctx, owner)
}

// Executables returns the executables of the software called softwareName.
func (r *Registry) Executables(ctx context.Context, softwareName string) ([]store.ExecutableRow, error) {
	return r.store.JoinExecutables(ctx, softwareName)
}
