// Package control is the control-side half of a telem tree. A Mirror
// hands out Handles for the nodes it has created and turns every call on
// them into a tree message for the render side.
package control

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/tree"
)

var (
	// ErrDeleted is returned when a handle is used after it, or one of its
	// ancestors, was deleted.
	ErrDeleted = errors.New("control: node deleted")

	// ErrRootExists is returned by Root when the mirror already has a root.
	ErrRootExists = errors.New("control: root already created")
)

// Mirror tracks the nodes the control side has created.
type Mirror struct {
	out chan<- tree.Message

	mu          sync.Mutex
	live        map[string]struct{}
	root        *Handle
	rootPending bool
	handlers    map[string]map[uint64]func(json.RawMessage)
	nextID      uint64
}

// NewMirror creates a mirror sending to out.
func NewMirror(out chan<- tree.Message) *Mirror {
	return &Mirror{
		out:      out,
		live:     make(map[string]struct{}),
		handlers: make(map[string]map[uint64]func(json.RawMessage)),
	}
}

// Root creates the root node. Only one root may exist at a time; concurrent
// calls while one is being created fail with ErrRootExists.
func (m *Mirror) Root(ctx context.Context, typ string, state any) (*Handle, error) {
	m.mu.Lock()
	if m.root != nil || m.rootPending {
		m.mu.Unlock()
		return nil, ErrRootExists
	}
	m.rootPending = true
	m.mu.Unlock()

	h, err := m.create(ctx, nil, typ, state)
	m.mu.Lock()
	m.rootPending = false
	if err == nil {
		m.root = h
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Mirror) create(ctx context.Context, parent []string, typ string, state any) (*Handle, error) {
	raw, err := encodeState(state)
	if err != nil {
		return nil, err
	}
	key := uuid.NewString()
	path := append(append(make([]string, 0, len(parent)+1), parent...), key)
	u := tree.Update{Path: path, Kind: tree.KindCreate, Type: typ, State: raw}
	if err := m.send(ctx, u); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.live[tree.JoinPath(path)] = struct{}{}
	m.mu.Unlock()
	telem.Logger().Debug("control: created node", "type", typ, "path", tree.JoinPath(path))
	return &Handle{mirror: m, path: path, typ: typ}, nil
}

func (m *Mirror) send(ctx context.Context, msg tree.Message) error {
	select {
	case m.out <- msg:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "control: send to %s", tree.JoinPath(msg.Target()))
	}
}

func (m *Mirror) alive(path []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[tree.JoinPath(path)]
	return ok
}

// forget drops path and every path below it.
func (m *Mirror) forget(path []string) {
	prefix := tree.JoinPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.live {
		if p == prefix || strings.HasPrefix(p, prefix+".") {
			delete(m.live, p)
		}
	}
	if len(path) == 1 {
		m.root = nil
	}
}

// OnState registers fn for state reported by the node with key. The
// returned function removes the registration.
func (m *Mirror) OnState(key string, fn func(json.RawMessage)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	hs, ok := m.handlers[key]
	if !ok {
		hs = make(map[uint64]func(json.RawMessage))
		m.handlers[key] = hs
	}
	hs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers[key], id)
		if len(m.handlers[key]) == 0 {
			delete(m.handlers, key)
		}
	}
}

// Listen dispatches reported state from in to OnState handlers until in is
// closed or ctx is done.
func (m *Mirror) Listen(ctx context.Context, in <-chan tree.StateMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-in:
			if !ok {
				return nil
			}
			m.dispatch(s)
		}
	}
}

func (m *Mirror) dispatch(s tree.StateMessage) {
	m.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(m.handlers[s.Key]))
	for _, fn := range m.handlers[s.Key] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	if len(fns) == 0 {
		telem.Logger().Debug("control: unhandled state", "key", s.Key)
	}
	for _, fn := range fns {
		fn(s.State)
	}
}

func encodeState(state any) (json.RawMessage, error) {
	if state == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(err, "control: marshal state")
	}
	return raw, nil
}

// Handle addresses one node created through a Mirror. Handles are safe for
// concurrent use; messages from concurrent calls are sent in an unspecified
// order.
type Handle struct {
	mirror *Mirror
	path   []string
	typ    string
}

// Key returns the node's key.
func (h *Handle) Key() string { return h.path[len(h.path)-1] }

// Type returns the node's component type.
func (h *Handle) Type() string { return h.typ }

// Path returns a copy of the node's full path from the root.
func (h *Handle) Path() []string { return append([]string(nil), h.path...) }

// Create adds a child under h with a fresh key.
func (h *Handle) Create(ctx context.Context, typ string, state any) (*Handle, error) {
	if !h.mirror.alive(h.path) {
		return nil, ErrDeleted
	}
	return h.mirror.create(ctx, h.path, typ, state)
}

// Set replaces the node's state.
func (h *Handle) Set(ctx context.Context, state any) error {
	if !h.mirror.alive(h.path) {
		return ErrDeleted
	}
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	return h.mirror.send(ctx, tree.Update{Path: h.Path(), Kind: tree.KindUpdate, Type: h.typ, State: raw})
}

// Invalidate re-propagates the node's context without changing its state.
func (h *Handle) Invalidate(ctx context.Context) error {
	if !h.mirror.alive(h.path) {
		return ErrDeleted
	}
	return h.mirror.send(ctx, tree.Update{Path: h.Path(), Kind: tree.KindContext})
}

// Delete removes the node and its subtree.
func (h *Handle) Delete(ctx context.Context) error {
	if !h.mirror.alive(h.path) {
		return ErrDeleted
	}
	if err := h.mirror.send(ctx, tree.Delete{Path: h.Path()}); err != nil {
		return err
	}
	h.mirror.forget(h.path)
	return nil
}

// OnState registers fn for state the node reports.
func (h *Handle) OnState(fn func(json.RawMessage)) (remove func()) {
	return h.mirror.OnState(h.Key(), fn)
}
