package tree

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Constructor creates an empty component for a node with the given key.
type Constructor func(key string) Component

// Factory describes one component type.
type Factory struct {
	// Type is the tag carried by Update messages.
	Type string

	// Schema is an optional JSON Schema document every state payload must
	// satisfy before it reaches the component. Empty means no validation.
	Schema string

	// Composite marks components that own children.
	Composite bool

	// New creates the component.
	New Constructor
}

type registration struct {
	factory Factory
	schema  *gojsonschema.Schema
}

// Registry maps type tags to component factories. Each render loop owns its
// own Registry; there is no process-wide instance.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds a factory. Like database/sql drivers, registration errors are
// programming errors, so Register panics if:
//   - the constructor is nil
//   - the type is empty or already registered
//   - the schema does not compile
func (r *Registry) Register(f Factory) {
	if f.New == nil {
		panic("tree: Register constructor is nil for " + f.Type)
	}
	if f.Type == "" {
		panic("tree: Register called with empty type")
	}
	reg := registration{factory: f}
	if f.Schema != "" {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(f.Schema))
		if err != nil {
			panic("tree: invalid schema for " + f.Type + ": " + err.Error())
		}
		reg.schema = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[f.Type]; dup {
		panic("tree: Register called twice for " + f.Type)
	}
	r.types[f.Type] = reg
}

// Lookup returns the factory for typ.
func (r *Registry) Lookup(typ string) (Factory, error) {
	r.mu.RLock()
	reg, ok := r.types[typ]
	r.mu.RUnlock()
	if !ok {
		return Factory{}, protocolErrorf(ErrUnknownType, "%q (forgotten registration?)", typ)
	}
	return reg.factory, nil
}

// Validate checks raw state against the schema registered for typ.
func (r *Registry) Validate(typ string, raw []byte) error {
	r.mu.RLock()
	reg, ok := r.types[typ]
	r.mu.RUnlock()
	if !ok {
		return protocolErrorf(ErrUnknownType, "%q (forgotten registration?)", typ)
	}
	if reg.schema == nil {
		return nil
	}
	res, err := reg.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrapf(ErrInvalidState, "%s: %v", typ, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Wrapf(ErrInvalidState, "%s: %s", typ, strings.Join(msgs, "; "))
	}
	return nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether typ has a factory.
func (r *Registry) IsRegistered(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[typ]
	return ok
}
