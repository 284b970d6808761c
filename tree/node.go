package tree

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/telem"
)

// Node is one member of the render-side component tree. Leaves own only their
// state; composites also own an ordered list of uniquely keyed children.
type Node struct {
	key       string
	typ       string
	comp      Component
	composite bool
	children  []*Node
	ctx       *Context
	deleted   bool
}

// Key returns the node's key, unique among its siblings.
func (n *Node) Key() string { return n.key }

// Type returns the node's component type tag.
func (n *Node) Type() string { return n.typ }

// Component returns the behavior behind the node.
func (n *Node) Component() Component { return n.comp }

// Composite reports whether the node can own children.
func (n *Node) Composite() bool { return n.composite }

// Children returns the node's children in creation order. The slice must not
// be modified.
func (n *Node) Children() []*Node { return n.children }

// Context returns the context fork from the node's most recent update.
func (n *Node) Context() *Context { return n.ctx }

// Deleted reports whether the node has been finalized.
func (n *Node) Deleted() bool { return n.deleted }

// Child returns the direct child with the given key, or nil.
func (n *Node) Child(key string) *Node {
	if i := n.childIndex(key); i >= 0 {
		return n.children[i]
	}
	return nil
}

func (n *Node) childIndex(key string) int {
	return slices.IndexFunc(n.children, func(c *Node) bool { return c.key == key })
}

// Find resolves a path that starts with n's own key. It returns nil when the
// path does not resolve.
func (n *Node) Find(path []string) *Node {
	if len(path) == 0 || path[0] != n.key {
		return nil
	}
	cur := n
	for _, key := range path[1:] {
		if cur = cur.Child(key); cur == nil {
			return nil
		}
	}
	return cur
}

// Apply applies one update to the tree rooted at root and returns the
// (possibly newly created) root. base is the context the root forks from.
//
// A nil root is created from the registry when the update's path has exactly
// one segment. Protocol errors leave the tree unchanged. Schema errors reject
// only the offending update. Hook errors are returned after the tree has been
// updated.
func Apply(base *Context, root *Node, u Update) (*Node, error) {
	if len(u.Path) == 0 {
		return root, protocolErrorf(ErrEmptyPath, "apply %s", u.Kind)
	}
	if root == nil {
		if len(u.Path) != 1 {
			return nil, protocolErrorf(ErrNotFound, "no root for path %s", JoinPath(u.Path))
		}
		return construct(base, u.Path[0], u)
	}
	return root, root.apply(base, u.Path, u)
}

// Remove deletes the node addressed by path and finalizes its subtree,
// children before parents. Removing the root returns a nil root.
func Remove(root *Node, path []string) (*Node, error) {
	if len(path) == 0 {
		return root, protocolErrorf(ErrEmptyPath, "delete")
	}
	if root == nil {
		return nil, protocolErrorf(ErrNotFound, "delete %s from empty tree", JoinPath(path))
	}
	if path[0] != root.key {
		return root, protocolErrorf(ErrKeyMismatch, "%s:%s received delete for %s", root.typ, root.key, JoinPath(path))
	}
	if len(path) == 1 {
		root.finalize()
		return nil, nil
	}
	return root, root.remove(path[1:], path)
}

// Walk visits n and its descendants in pre-order.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.children {
		Walk(c, fn)
	}
}

func construct(parent *Context, key string, u Update) (*Node, error) {
	if u.ContextOnly() {
		return nil, protocolErrorf(ErrMissingState, "%s (%s) at %s", key, u.Kind, JoinPath(u.Path))
	}
	reg := parent.registry
	if reg == nil {
		return nil, protocolErrorf(ErrUnknownType, "%q: context has no registry", u.Type)
	}
	f, err := reg.Lookup(u.Type)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(u.Type, u.State); err != nil {
		return nil, err
	}
	comp := f.New(key)
	if err := comp.SetState(u.State); err != nil {
		return nil, errors.Wrapf(err, "%s:%s", u.Type, key)
	}
	n := &Node{key: key, typ: u.Type, comp: comp, composite: f.Composite}
	n.ctx = parent.fork(key, nil, false)
	telem.Logger().Debug("tree: created node", "type", n.typ, "key", key)
	if err := comp.AfterUpdate(n.ctx); err != nil {
		return n, n.hookError(err)
	}
	return n, nil
}

func (n *Node) apply(parent *Context, path []string, u Update) error {
	if len(path) == 0 {
		return protocolErrorf(ErrEmptyPath, "%s:%s", n.typ, n.key)
	}
	if path[0] != n.key {
		return protocolErrorf(ErrKeyMismatch, "%s:%s received key %q", n.typ, n.key, path[0])
	}
	sub := path[1:]
	if len(sub) == 0 {
		if u.ContextOnly() {
			return n.propagate(parent, false)
		}
		return n.update(parent, u)
	}
	if !n.composite {
		return protocolErrorf(ErrLeafSubpath, "%s:%s received sub-path %s", n.typ, n.key, JoinPath(sub))
	}
	if child := n.Child(sub[0]); child != nil {
		return child.apply(n.ctx, sub, u)
	}
	if len(sub) > 1 {
		return protocolErrorf(ErrNotFound, "%s:%s has no child %q for path %s", n.typ, n.key, sub[0], JoinPath(u.Path))
	}
	child, err := construct(n.ctx, sub[0], u)
	if child != nil {
		n.children = append(n.children, child)
	}
	return err
}

func (n *Node) update(parent *Context, u Update) error {
	if u.Type != "" && u.Type != n.typ {
		return protocolErrorf(ErrTypeMismatch, "%s:%s received type %q", n.typ, n.key, u.Type)
	}
	if reg := parent.registry; reg != nil {
		if err := reg.Validate(n.typ, u.State); err != nil {
			return err
		}
	}
	if err := n.comp.SetState(u.State); err != nil {
		return errors.Wrapf(err, "%s:%s", n.typ, n.key)
	}
	n.ctx = parent.fork(n.key, n.ctx, false)
	telem.Logger().Debug("tree: updated node", "type", n.typ, "key", n.key)
	var err error
	if hookErr := n.comp.AfterUpdate(n.ctx); hookErr != nil {
		err = n.hookError(hookErr)
	}
	if n.ctx.Changed() {
		err = errors.CombineErrors(err, n.propagateChildren())
	}
	return err
}

// propagate re-forks the node's context and re-runs its context hook. The
// pass continues into the children only when the new fork is changed.
func (n *Node) propagate(parent *Context, inherit bool) error {
	n.ctx = parent.fork(n.key, n.ctx, inherit)
	var err error
	if ca, ok := n.comp.(ContextAware); ok {
		err = ca.AfterContextChange(n.ctx)
	} else {
		err = n.comp.AfterUpdate(n.ctx)
	}
	if err != nil {
		err = n.hookError(err)
	}
	if n.ctx.Changed() {
		err = errors.CombineErrors(err, n.propagateChildren())
	}
	return err
}

func (n *Node) propagateChildren() error {
	var err error
	for _, c := range n.children {
		err = errors.CombineErrors(err, c.propagate(n.ctx, true))
	}
	return err
}

func (n *Node) remove(sub, full []string) error {
	if !n.composite {
		return protocolErrorf(ErrLeafSubpath, "%s:%s received delete for %s", n.typ, n.key, JoinPath(full))
	}
	i := n.childIndex(sub[0])
	if i < 0 {
		return protocolErrorf(ErrNotFound, "%s:%s has no child %q for delete %s", n.typ, n.key, sub[0], JoinPath(full))
	}
	child := n.children[i]
	if len(sub) > 1 {
		return child.remove(sub[1:], full)
	}
	n.children = slices.Delete(n.children, i, i+1)
	child.finalize()
	return nil
}

func (n *Node) finalize() {
	for _, c := range n.children {
		c.finalize()
	}
	n.children = nil
	n.deleted = true
	n.comp.AfterDelete(n.ctx)
	telem.Logger().Debug("tree: deleted node", "type", n.typ, "key", n.key)
}

func (n *Node) hookError(err error) error {
	return errors.Wrapf(errors.Mark(err, ErrHook), "%s:%s", n.typ, n.key)
}
