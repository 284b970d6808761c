package wire

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/telem/tree"
)

// Envelope variants.
const (
	VariantUpdate = "update"
	VariantDelete = "delete"
)

var (
	// ErrUnknownVariant is returned when an envelope names no known variant.
	ErrUnknownVariant = errors.New("wire: unknown message variant")

	// ErrUnknownKind is returned for an update with an unknown kind.
	ErrUnknownKind = errors.New("wire: unknown update kind")
)

type envelope struct {
	Variant string          `json:"variant"`
	Path    []string        `json:"path"`
	Kind    string          `json:"kind,omitempty"`
	Type    string          `json:"type,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
}

// Marshal encodes a single message as a JSON envelope.
func Marshal(m tree.Message) ([]byte, error) {
	var env envelope
	switch msg := m.(type) {
	case tree.Update:
		env = updateEnvelope(msg)
	case *tree.Update:
		env = updateEnvelope(*msg)
	case tree.Delete:
		env = envelope{Variant: VariantDelete, Path: msg.Path}
	case *tree.Delete:
		env = envelope{Variant: VariantDelete, Path: msg.Path}
	default:
		return nil, errors.Wrapf(ErrUnknownVariant, "marshal %T", m)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal envelope")
	}
	return b, nil
}

func updateEnvelope(u tree.Update) envelope {
	return envelope{
		Variant: VariantUpdate,
		Path:    u.Path,
		Kind:    u.Kind.String(),
		Type:    u.Type,
		State:   u.State,
	}
}

// Unmarshal decodes a JSON envelope produced by Marshal.
func Unmarshal(b []byte) (tree.Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, "wire: unmarshal envelope")
	}
	switch env.Variant {
	case VariantUpdate:
		kind, err := parseKind(env.Kind)
		if err != nil {
			return nil, err
		}
		return tree.Update{Path: env.Path, Kind: kind, Type: env.Type, State: env.State}, nil
	case VariantDelete:
		return tree.Delete{Path: env.Path}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownVariant, "%q", env.Variant)
	}
}

func parseKind(s string) (tree.Kind, error) {
	switch s {
	case "", "update":
		return tree.KindUpdate, nil
	case "create":
		return tree.KindCreate, nil
	case "context":
		return tree.KindContext, nil
	default:
		return 0, errors.Wrapf(ErrUnknownKind, "%q", s)
	}
}
