package tree

import "github.com/cockroachdb/errors"

// Protocol errors. They mean the control and render views of the tree have
// diverged and are never recoverable for the offending message.
var (
	// ErrEmptyPath is returned when a node receives a message with no path.
	ErrEmptyPath = errors.New("tree: empty path")

	// ErrKeyMismatch is returned when the first path element does not match
	// the receiving node's key.
	ErrKeyMismatch = errors.New("tree: path key does not match node key")

	// ErrUnknownType is returned when no factory is registered for a type.
	ErrUnknownType = errors.New("tree: unknown component type")

	// ErrNotFound is returned when a path does not resolve to a node.
	ErrNotFound = errors.New("tree: node not found")

	// ErrLeafSubpath is returned when a message addresses a child of a leaf.
	ErrLeafSubpath = errors.New("tree: leaf received a sub-path")

	// ErrMissingState is returned when a node would be created without state.
	ErrMissingState = errors.New("tree: cannot create node without state")

	// ErrTypeMismatch is returned when an update names a type different from
	// the existing node's.
	ErrTypeMismatch = errors.New("tree: update type does not match node type")
)

// ErrInvalidState is returned when a state payload fails schema validation
// or decoding. Only the offending update is rejected.
var ErrInvalidState = errors.New("tree: invalid state")

// ErrHook is wrapped around errors returned from component hooks. The node
// remains in the tree.
var ErrHook = errors.New("tree: component hook failed")

func protocolErrorf(sentinel error, format string, args ...interface{}) error {
	return errors.WithAssertionFailure(errors.Wrapf(sentinel, format, args...))
}

// IsProtocolError reports whether err is a fatal protocol error.
func IsProtocolError(err error) bool {
	return errors.HasAssertionFailure(err)
}
