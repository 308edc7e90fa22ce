package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keyhub-labs/keyhub/internal/capability"
	"github.com/keyhub-labs/keyhub/internal/store"
	"go.uber.org/zap"
)

// Context is the per-load configuration bag handed to an add-on's
// initialization, for example {"projectDir": "/src/app"}.
type Context map[string]any

// Host is what an add-on receives when it is initialized.
type Host struct {
	Record  store.AddOn
	Context Context
	// Logger is named "add-on:<name>".
	Logger *zap.Logger
	// Executables lists the executables registered for a software name.
	Executables func(ctx context.Context, softwareName string) ([]store.ExecutableRow, error)
}

// Factory builds the capability tree of a Go builtin add-on.
type Factory func(Host) (*capability.Tree, error)

// Builtins maps the ids used in "builtin:<id>" entry points to factories
// registered by the host application.
type Builtins struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewBuiltins returns an empty set.
func NewBuiltins() *Builtins {
	return &Builtins{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Registering an id twice is an error.
func (b *Builtins) Register(id string, f Factory) error {
	if id == "" || f == nil {
		return fmt.Errorf("builtin registration needs an id and a factory")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.factories[id]; ok {
		return fmt.Errorf("builtin %q already registered", id)
	}
	b.factories[id] = f
	return nil
}

// Lookup returns the factory registered under id.
func (b *Builtins) Lookup(id string) (Factory, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.factories[id]
	return f, ok
}

// IDs lists the registered ids in lexical order.
func (b *Builtins) IDs() []string {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.factories))
	for id := range b.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
