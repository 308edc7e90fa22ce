package capability

import (
	"context"
	"fmt"
	"sort"
)

// Func is the signature every capability is adapted to, whatever language
// the add-on is written in.
type Func func(ctx context.Context, args ...any) (any, error)

// Tree is a nested capability namespace. A node may hold a function and
// children at the same time, the way a JavaScript function object can carry
// properties.
type Tree struct {
	fn       Func
	children map[string]*Tree
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Insert binds fn at p. Binding the same path twice is an error.
func (t *Tree) Insert(p Path, fn Func) error {
	if len(p) == 0 {
		return fmt.Errorf("cannot bind a capability at the empty path")
	}
	if fn == nil {
		return fmt.Errorf("capability %s: nil function", p)
	}
	node := t
	for _, seg := range p {
		if node.children == nil {
			node.children = make(map[string]*Tree)
		}
		next, ok := node.children[seg]
		if !ok {
			next = &Tree{}
			node.children[seg] = next
		}
		node = next
	}
	if node.fn != nil {
		return fmt.Errorf("capability %s bound twice", p)
	}
	node.fn = fn
	return nil
}

// Lookup returns the function bound at p.
func (t *Tree) Lookup(p Path) (Func, bool) {
	node := t
	for _, seg := range p {
		next, ok := node.children[seg]
		if !ok {
			return nil, false
		}
		node = next
	}
	if node.fn == nil || len(p) == 0 {
		return nil, false
	}
	return node.fn, true
}

// Paths returns every bound path in lexical order.
func (t *Tree) Paths() []Path {
	var out []Path
	var walk func(node *Tree, prefix Path)
	walk = func(node *Tree, prefix Path) {
		if node.fn != nil && len(prefix) > 0 {
			out = append(out, append(Path(nil), prefix...))
		}
		for seg, child := range node.children {
			walk(child, append(prefix, seg))
		}
	}
	walk(t, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Restrict builds a tree holding only the declared paths. It returns the
// declared paths that t does not bind.
func (t *Tree) Restrict(declared []Path) (*Tree, []Path) {
	out := NewTree()
	var missing []Path
	for _, p := range declared {
		fn, ok := t.Lookup(p)
		if !ok {
			missing = append(missing, p)
			continue
		}
		if err := out.Insert(p, fn); err != nil {
			missing = append(missing, p)
		}
	}
	return out, missing
}
