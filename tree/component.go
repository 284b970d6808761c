package tree

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Component is the behavior behind a node. All methods are called on the
// render goroutine only.
type Component interface {
	// SetState decodes a schema-validated payload. On error the previous
	// state must be left untouched.
	SetState(raw []byte) error

	// AfterUpdate runs after every state change with the node's new context
	// fork. It may acquire or release external resources and must be
	// idempotent.
	AfterUpdate(ctx *Context) error

	// AfterDelete runs once after the node has been detached from the tree.
	AfterDelete(ctx *Context)
}

// ContextAware is implemented by components that need to distinguish
// context-only passes from state updates. Components that do not implement it
// have AfterUpdate re-run instead.
type ContextAware interface {
	AfterContextChange(ctx *Context) error
}

// State holds the current and previous decoded state of a component. Embed it
// to get a SetState implementation backed by encoding/json.
type State[S any] struct {
	cur  S
	prev S
	set  bool
}

// SetState decodes raw into a fresh S and swaps it in.
func (s *State[S]) SetState(raw []byte) error {
	var next S
	if err := json.Unmarshal(raw, &next); err != nil {
		return errors.Wrap(ErrInvalidState, err.Error())
	}
	if s.set {
		s.prev = s.cur
	} else {
		s.prev = next
	}
	s.cur = next
	s.set = true
	return nil
}

// Current returns the current state.
func (s *State[S]) Current() S { return s.cur }

// Previous returns the state before the last SetState. Before the second
// update it equals Current.
func (s *State[S]) Previous() S { return s.prev }

// Initialized reports whether SetState has succeeded at least once.
func (s *State[S]) Initialized() bool { return s.set }

// group is a composite with no behavior of its own.
type group struct {
	State[map[string]any]
}

func (*group) AfterUpdate(*Context) error { return nil }
func (*group) AfterDelete(*Context)       {}

// GroupFactory returns a factory for a plain composite whose state is any
// JSON object. It is typically used for the root of a tree.
func GroupFactory(typ string) Factory {
	return Factory{
		Type:      typ,
		Schema:    `{"type": "object"}`,
		Composite: true,
		New:       func(string) Component { return &group{} },
	}
}
