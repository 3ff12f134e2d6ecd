package replica

import (
	"fmt"
	"io"
)

// A Transfer is a registered state shape that can cross the wire. The
// name identifies the concrete type in the registry; the codec methods
// define the payload layout, typically built from the ReadUint*/
// WriteUint* helpers in this package.
type Transfer interface {
	TransferName() string
	EncodeTransfer(w io.Writer) error
	DecodeTransfer(r io.Reader) error
}

// Transfers is the session's payload type registry. Registration order
// defines the wire tag of each type, so every peer of a session must
// register the same types in the same order. The registry is built once
// at startup and never mutated afterwards.
type Transfers struct {
	protos []func() Transfer
	names  []string
	tags   map[string]int32
}

// NewTransfers builds a registry from an ordered list of Transfer
// constructors. A duplicate name is a configuration defect and fails.
func NewTransfers(protos ...func() Transfer) (*Transfers, error) {
	ts := &Transfers{
		protos: protos,
		names:  make([]string, len(protos)),
		tags:   make(map[string]int32, len(protos)),
	}

	for i, proto := range protos {
		name := proto().TransferName()
		if _, ok := ts.tags[name]; ok {
			return nil, fmt.Errorf("transfer type %q registered twice", name)
		}

		ts.names[i] = name
		ts.tags[name] = int32(i)
	}

	return ts, nil
}

// Tag returns the wire tag of t's concrete type.
func (ts *Transfers) Tag(t Transfer) (int32, error) {
	tag, ok := ts.tags[t.TransferName()]
	if !ok {
		return -1, &UnregisteredTypeError{Name: t.TransferName()}
	}
	return tag, nil
}

// New instantiates a fresh Transfer for a received wire tag.
func (ts *Transfers) New(tag int32) (Transfer, error) {
	if tag < 0 || int(tag) >= len(ts.protos) {
		return nil, UnknownTagError(tag)
	}
	return ts.protos[tag](), nil
}

// Len returns the number of registered types.
func (ts *Transfers) Len() int { return len(ts.protos) }
