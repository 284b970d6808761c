package tree

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ErrNoSender is returned by Report when the context has no outbound sender.
var ErrNoSender = errors.New("tree: context has no sender")

// Context carries providers, the component registry and the outbound sender
// down the tree.
//
// Contexts form a singly-linked fork chain. Every time a node is updated it
// forks a new Context from its parent's; providers the node sets live on its
// own fork and are therefore visible to its subtree but not to its siblings,
// its ancestors, or the node itself. A node's providers carry over from one
// fork to the next.
//
// The changed flag records that a provider was set during the current pass.
// It is never reset: each pass forks fresh contexts, so a flag cannot leak
// into a later pass.
type Context struct {
	parent    *Context
	key       string
	providers map[string]any
	registry  *Registry
	sender    Sender
	changed   bool
	inherited bool
}

// NewContext creates the base context shared by the root of a tree.
func NewContext(reg *Registry, out Sender) *Context {
	return &Context{
		registry:  reg,
		sender:    out,
		providers: make(map[string]any),
	}
}

// Child forks a fresh context for the node with the given key.
func (c *Context) Child(key string) *Context {
	return c.fork(key, nil, false)
}

// fork creates a child context. carry holds the node's providers from its
// previous fork; inherit marks a propagation pass triggered by an ancestor.
func (c *Context) fork(key string, carry *Context, inherit bool) *Context {
	f := &Context{
		parent:    c,
		key:       key,
		registry:  c.registry,
		sender:    c.sender,
		inherited: inherit,
	}
	if carry != nil && len(carry.providers) > 0 {
		f.providers = make(map[string]any, len(carry.providers))
		for k, v := range carry.providers {
			f.providers[k] = v
		}
	}
	return f
}

// Get resolves a provider through the ancestors of c.
func (c *Context) Get(key string) (any, bool) {
	for p := c.parent; p != nil; p = p.parent {
		if v, ok := p.providers[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Lookup resolves a provider and asserts its type.
func Lookup[T any](c *Context, key string) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set makes value available to the subtree under key and marks the context
// changed. The returned dirty bit is always true; callers that only want to
// trigger propagation on real changes should compare before calling Set.
func (c *Context) Set(key string, value any) bool {
	if c.providers == nil {
		c.providers = make(map[string]any)
	}
	c.providers[key] = value
	c.changed = true
	return true
}

// SetPreviously reports whether this node set key on an earlier pass or the
// current one.
func (c *Context) SetPreviously(key string) bool {
	_, ok := c.providers[key]
	return ok
}

// Changed reports whether a provider was set on this fork, or on an
// ancestor's fork during the pass that produced it.
func (c *Context) Changed() bool { return c.changed || c.inherited }

// Key returns the key of the node that owns the fork.
func (c *Context) Key() string { return c.key }

// Registry returns the component registry.
func (c *Context) Registry() *Registry { return c.registry }

// Report marshals state and pushes it to the control side under the node's
// key.
func (c *Context) Report(state any) error {
	if c.sender == nil {
		return ErrNoSender
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "tree: marshal reported state for %q", c.key)
	}
	return c.sender.Send(StateMessage{Key: c.key, State: raw})
}
