package tree

import (
	"encoding/json"
	"strings"
)

// Kind distinguishes the intent of an Update.
type Kind uint8

const (
	// KindUpdate replaces the state of an existing node, creating it when
	// the terminal path segment does not exist yet.
	KindUpdate Kind = iota
	// KindCreate creates the node at the terminal path segment.
	KindCreate
	// KindContext re-propagates context without a state change.
	KindContext
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindCreate:
		return "create"
	case KindContext:
		return "context"
	default:
		return "unknown"
	}
}

// Message is a tree mutation sent from the control side. It is either an
// Update or a Delete.
type Message interface {
	// Target returns the path addressed by the message.
	Target() []string
	isMessage()
}

// Update creates, updates, or re-propagates the context of the node at Path.
//
// Path consumes one key per composite level, starting with the root key. A
// nil State marks a context-only pass.
type Update struct {
	Path  []string        `json:"path"`
	Kind  Kind            `json:"kind"`
	Type  string          `json:"type,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

// Target implements Message.
func (u Update) Target() []string { return u.Path }
func (Update) isMessage()         {}

// ContextOnly reports whether the update carries no state.
func (u Update) ContextOnly() bool { return u.State == nil || u.Kind == KindContext }

// Delete removes the node at Path and finalizes its subtree.
type Delete struct {
	Path []string `json:"path"`
}

// Target implements Message.
func (d Delete) Target() []string { return d.Path }
func (Delete) isMessage()         {}

// StateMessage is pushed from a render-side node back to the control side,
// for example to report a derived bounding box.
type StateMessage struct {
	Key   string          `json:"key"`
	State json.RawMessage `json:"state"`
}

// Sender delivers StateMessages to the control side.
type Sender interface {
	Send(StateMessage) error
}

// SenderFunc adapts a function to a Sender.
type SenderFunc func(StateMessage) error

// Send implements Sender.
func (f SenderFunc) Send(m StateMessage) error { return f(m) }

// JoinPath renders a path for log and error messages.
func JoinPath(path []string) string { return strings.Join(path, ".") }
