package loader

import (
	"github.com/keyhub-labs/keyhub/internal/capability"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/store"
)

// Handle is a loaded add-on. It exposes exactly the capabilities its
// manifest declares; the functions are reachable only through
// capability.Gateway.
type Handle struct {
	Record  store.AddOn
	Context Context

	paths []capability.Path
	tree  *capability.Tree
}

// Name returns the add-on name.
func (h *Handle) Name() string { return h.Record.Name }

// Paths returns the declared capability paths in manifest order.
func (h *Handle) Paths() []capability.Path {
	out := make([]capability.Path, len(h.paths))
	copy(out, h.paths)
	return out
}

// Capability returns the capability at path. Paths the manifest does not
// declare fail with errcode.SchemaMismatch.
func (h *Handle) Capability(path string) (capability.Capability, error) {
	p, err := capability.ParsePath(path)
	if err != nil {
		return capability.Capability{}, errcode.Wrap(errcode.SchemaMismatch, err, "add-on %s", h.Record.Name)
	}
	fn, ok := h.tree.Lookup(p)
	if !ok {
		return capability.Capability{}, errcode.New(errcode.SchemaMismatch,
			"add-on %s does not declare capability %q", h.Record.Name, path)
	}
	return capability.Bind(h.Record.Name, p, fn), nil
}
