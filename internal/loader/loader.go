package loader

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/keyhub-labs/keyhub/internal/capability"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/logging"
	"github.com/keyhub-labs/keyhub/internal/manifest"
	"github.com/keyhub-labs/keyhub/internal/store"
	"go.uber.org/zap"
)

// Loader brings installed add-ons into the process.
type Loader struct {
	store    *store.Store
	log      *zap.Logger
	builtins *Builtins

	cacheEnabled bool
	mu           sync.Mutex
	cache        map[string]*Handle
}

// Option configures a Loader.
type Option func(*Loader)

// WithCache reuses handles across loads while the stored record and the
// load context are unchanged.
func WithCache() Option {
	return func(l *Loader) { l.cacheEnabled = true }
}

// WithBuiltins sets the factories used for "builtin:<id>" entry points.
func WithBuiltins(b *Builtins) Option {
	return func(l *Loader) { l.builtins = b }
}

// New returns a loader reading records from s.
func New(s *store.Store, log *zap.Logger, opts ...Option) *Loader {
	l := &Loader{
		store: s,
		log:   logging.OrNop(log),
		cache: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Failure is an add-on that could not be loaded in a batch.
type Failure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// Batch is the result of loading every add-on of one type.
type Batch struct {
	Loaded []*Handle
	Failed []Failure
}

// LoadByName loads the add-on called name. Resolution short-circuits in
// order: store lookup (NotInRegistry, DBLoadFailure), existence of the
// install path (LoadFailure), evaluation of the entry point (LoadFailure),
// and the check that every declared capability is a function
// (SchemaMismatch). A partial handle is never returned.
func (l *Loader) LoadByName(ctx context.Context, name string, lctx Context) (*Handle, error) {
	rec, err := l.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errcode.Wrap(errcode.NotInRegistry, err, "loading %s", name)
		}
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "loading %s", name)
	}
	return l.load(ctx, rec, lctx)
}

// LoadByType loads every add-on of type t. Failures are collected per
// add-on; only a store failure aborts the batch.
func (l *Loader) LoadByType(ctx context.Context, t manifest.AddOnType, lctx Context) (Batch, error) {
	records, err := l.store.ListByType(ctx, t)
	if err != nil {
		return Batch{}, errcode.Wrap(errcode.DBLoadFailure, err, "listing %s add-ons", t)
	}

	batch := Batch{Loaded: []*Handle{}, Failed: []Failure{}}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		h, err := l.load(ctx, rec, lctx)
		if err != nil {
			l.log.Warn("add-on failed to load",
				zap.String("addon", rec.Name),
				zap.String("code", string(errcode.CodeOf(err))),
				zap.Error(err),
			)
			batch.Failed = append(batch.Failed, Failure{Name: rec.Name, Err: err})
			continue
		}
		batch.Loaded = append(batch.Loaded, h)
	}
	return batch, nil
}

// Invalidate drops the cached handle of name, if any.
func (l *Loader) Invalidate(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.mu.Unlock()
}

func (l *Loader) load(ctx context.Context, rec store.AddOn, lctx Context) (*Handle, error) {
	if h := l.cached(rec, lctx); h != nil {
		return h, nil
	}

	log := l.log.With(zap.String("addon", rec.Name), zap.String("version", rec.Version))

	if _, err := os.Stat(rec.InstallPath); err != nil {
		return nil, errcode.Wrap(errcode.LoadFailure, err, "add-on %s entry point", rec.Name)
	}

	declared, err := capability.ParsePaths(rec.Capabilities)
	if err != nil {
		return nil, errcode.Wrap(errcode.SchemaMismatch, err, "add-on %s", rec.Name)
	}

	host := Host{
		Record:      rec,
		Context:     maps.Clone(lctx),
		Logger:      logging.ForAddOn(l.log, rec.Name),
		Executables: l.store.JoinExecutables,
	}

	var tree *capability.Tree
	if id, ok := strings.CutPrefix(rec.Entry, manifest.BuiltinPrefix); ok {
		tree, err = l.loadBuiltin(id, host)
	} else {
		tree, err = loadJS(ctx, rec.InstallPath, host)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, errcode.Wrap(errcode.LoadFailure, err, "add-on %s", rec.Name)
	}

	restricted, missing := tree.Restrict(declared)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = p.String()
		}
		return nil, errcode.New(errcode.SchemaMismatch,
			"add-on %s declares capabilities it does not export as functions: %s",
			rec.Name, strings.Join(names, ", "))
	}

	h := &Handle{
		Record:  rec,
		Context: host.Context,
		paths:   declared,
		tree:    restricted,
	}
	l.remember(h)
	log.Debug("add-on loaded", zap.Int("capabilities", len(declared)))
	return h, nil
}

func (l *Loader) loadBuiltin(id string, host Host) (tree *capability.Tree, err error) {
	factory, ok := l.builtins.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("no builtin registered as %q", id)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builtin %s panicked: %v", id, r)
		}
	}()
	tree, err = factory(host)
	if err == nil && tree == nil {
		err = fmt.Errorf("builtin %s returned no capabilities", id)
	}
	return tree, err
}

func (l *Loader) cached(rec store.AddOn, lctx Context) *Handle {
	if !l.cacheEnabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.cache[rec.Name]
	if !ok {
		return nil
	}
	if h.Record.ID != rec.ID || !h.Record.SameInstall(rec) || !h.Record.UpdatedAt.Equal(rec.UpdatedAt) ||
		!reflect.DeepEqual(h.Context, lctx) {
		delete(l.cache, rec.Name)
		return nil
	}
	return h
}

func (l *Loader) remember(h *Handle) {
	if !l.cacheEnabled {
		return
	}
	l.mu.Lock()
	l.cache[h.Record.Name] = h
	l.mu.Unlock()
}
