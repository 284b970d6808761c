// Package source connects line components to the series store.
//
// A Source yields the buffered history of one channel as a MultiSeries and
// notifies subscribers when it changes. Sources are described on the control
// side by a Spec and created on the render side through a Registry published
// on the tree context.
package source

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/tree"
)

// ContextKey is the provider key of the Registry on the tree context.
const ContextKey = "source.registry"

// ErrUnknownSource is returned by Registry.Create for unregistered types.
var ErrUnknownSource = errors.New("source: unknown source type")

// Source is a live view of one channel.
type Source interface {
	// OnChange registers fn to be called, from any goroutine, whenever new
	// data is available. The returned function removes the subscription.
	OnChange(fn func()) (unsubscribe func())

	// Value returns the current snapshot. The MultiSeries must not be
	// modified by the caller.
	Value() (series.Bounds, series.MultiSeries, error)

	// Cleanup releases the source. It must be called exactly once.
	Cleanup() error
}

// Spec describes a source on the wire.
type Spec struct {
	Type  string          `json:"type"`
	Props json.RawMessage `json:"props,omitempty"`
}

// Equal reports whether s and o describe the same source, ignoring
// insignificant whitespace in the props.
func (s Spec) Equal(o Spec) bool {
	if s.Type != o.Type {
		return false
	}
	return bytes.Equal(compact(s.Props), compact(o.Props))
}

// IsZero reports whether the spec names no source.
func (s Spec) IsZero() bool { return s.Type == "" }

func compact(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	if buf.String() == "null" {
		return nil
	}
	return buf.Bytes()
}

// Factory creates a Source from its props.
type Factory func(props json.RawMessage) (Source, error)

// Registry maps source types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. It panics if typ is empty or already registered,
// or if f is nil.
func (r *Registry) Register(typ string, f Factory) {
	if typ == "" || f == nil {
		panic("source: Register called with empty type or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[typ]; dup {
		panic("source: Register called twice for " + typ)
	}
	r.factories[typ] = f
}

// Create builds the source described by spec.
func (r *Registry) Create(spec Spec) (Source, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSource, "%q", spec.Type)
	}
	src, err := f(spec.Props)
	if err != nil {
		return nil, errors.Wrapf(err, "source: create %s", spec.Type)
	}
	return src, nil
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// FromTree returns the Registry published on ctx.
func FromTree(ctx *tree.Context) (*Registry, bool) {
	return tree.Lookup[*Registry](ctx, ContextKey)
}
