package tree

import (
	"github.com/cockroachdb/errors"
)

// Tree holds the render-side root and the base context the root forks from.
// It is not safe for concurrent use: messages must be handled by a single
// goroutine, one at a time.
type Tree struct {
	base *Context
	root *Node
}

// New creates an empty tree. out may be nil when nodes never report state.
func New(reg *Registry, out Sender) *Tree {
	return &Tree{base: NewContext(reg, out)}
}

// Context returns the base context. Providers set on it before the first
// message are visible to the whole tree.
func (t *Tree) Context() *Context { return t.base }

// Root returns the root node, or nil before the first update.
func (t *Tree) Root() *Node { return t.root }

// Handle applies one message.
func (t *Tree) Handle(m Message) error {
	var err error
	switch msg := m.(type) {
	case Update:
		t.root, err = Apply(t.base, t.root, msg)
	case *Update:
		t.root, err = Apply(t.base, t.root, *msg)
	case Delete:
		t.root, err = Remove(t.root, msg.Path)
	case *Delete:
		t.root, err = Remove(t.root, msg.Path)
	default:
		err = errors.AssertionFailedf("tree: unsupported message %T", m)
	}
	return err
}

// Find resolves a full path from the root.
func (t *Tree) Find(path []string) *Node {
	if t.root == nil {
		return nil
	}
	return t.root.Find(path)
}

// Close finalizes every node.
func (t *Tree) Close() {
	if t.root != nil {
		t.root.finalize()
		t.root = nil
	}
}
