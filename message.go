package replica

import (
	"bytes"
	"fmt"
)

type MsgType uint8

const (
	MsgGeneric MsgType = iota
	MsgCreate
	MsgUpdate
	MsgDestroy
	MsgReckon
)

func (t MsgType) String() string {
	switch t {
	case MsgGeneric:
		return "generic"
	case MsgCreate:
		return "create"
	case MsgUpdate:
		return "update"
	case MsgDestroy:
		return "destroy"
	case MsgReckon:
		return "reckon"
	}
	return fmt.Sprintf("invalid(%d)", uint8(t))
}

// Msg is one replication message. SentTime is always authority clock,
// not the sender's local clock, so all peers judge staleness against
// the same timeline. State is nil if and only if Type is MsgDestroy.
type Msg struct {
	SentTime float64
	Type     MsgType
	ID       uint64
	State    Transfer
}

// Encode serializes msg: sentTime, type, uniqueId, then the payload tag
// and payload fields. Destroy carries neither tag nor payload.
func (ts *Transfers) Encode(msg Msg) ([]byte, error) {
	w := &bytes.Buffer{}

	WriteFloat64(w, msg.SentTime)
	WriteUint8(w, uint8(msg.Type))
	WriteUint64(w, msg.ID)

	if msg.Type == MsgDestroy {
		return w.Bytes(), nil
	}

	tag, err := ts.Tag(msg.State)
	if err != nil {
		return nil, err
	}

	WriteInt32(w, tag)
	if err := msg.State.EncodeTransfer(w); err != nil {
		return nil, &CodecError{Err: err}
	}

	return w.Bytes(), nil
}

// Decode is the inverse of Encode. It instantiates a fresh payload of
// the type behind the received tag and populates it from the remaining
// bytes. Any failure means the peers disagree about the protocol; the
// caller must drop the message, not ignore the error.
func (ts *Transfers) Decode(data []byte) (Msg, error) {
	r := bytes.NewReader(data)
	var msg Msg

	sentTime, err := ReadFloat64(r)
	if err != nil {
		return msg, &CodecError{Err: err}
	}

	typ, err := ReadUint8(r)
	if err != nil {
		return msg, &CodecError{Err: err}
	}
	if MsgType(typ) > MsgReckon {
		return msg, &CodecError{Err: fmt.Errorf("invalid message type %d", typ)}
	}

	id, err := ReadUint64(r)
	if err != nil {
		return msg, &CodecError{Err: err}
	}

	msg.SentTime = sentTime
	msg.Type = MsgType(typ)
	msg.ID = id

	if msg.Type == MsgDestroy {
		return msg, nil
	}

	tag, err := ReadInt32(r)
	if err != nil {
		return msg, &CodecError{Err: err}
	}

	state, err := ts.New(tag)
	if err != nil {
		return msg, &CodecError{Err: err}
	}

	if err := state.DecodeTransfer(r); err != nil {
		return msg, &CodecError{Err: err}
	}

	msg.State = state
	return msg, nil
}
