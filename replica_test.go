package replica

import (
	"io"
	"net"
	"testing"
)

// testState is the Transfer type used throughout the tests.
type testState struct {
	X float64
}

func (*testState) TransferName() string { return "test" }

func (s *testState) EncodeTransfer(w io.Writer) error {
	return WriteFloat64(w, s.X)
}

func (s *testState) DecodeTransfer(r io.Reader) error {
	var err error
	s.X, err = ReadFloat64(r)
	return err
}

// altState is a second registered type so tag ordering is observable.
type altState struct {
	N uint32
}

func (*altState) TransferName() string { return "alt" }

func (s *altState) EncodeTransfer(w io.Writer) error {
	return WriteUint32(w, s.N)
}

func (s *altState) DecodeTransfer(r io.Reader) error {
	var err error
	s.N, err = ReadUint32(r)
	return err
}

// strayState is never registered.
type strayState struct{}

func (*strayState) TransferName() string           { return "stray" }
func (*strayState) EncodeTransfer(io.Writer) error { return nil }
func (*strayState) DecodeTransfer(io.Reader) error { return nil }

func testTransfers(t *testing.T) *Transfers {
	t.Helper()

	ts, err := NewTransfers(
		func() Transfer { return &testState{} },
		func() Transfer { return &altState{} },
	)
	if err != nil {
		t.Fatalf("NewTransfers: %v", err)
	}
	return ts
}

type testEntity struct {
	id      uint64
	state   testState
	reckons int
	updates int
}

func (e *testEntity) UniqueID() uint64 { return e.id }

func (e *testEntity) TransferState() Transfer {
	s := e.state
	return &s
}

func (e *testEntity) ApplyState(state Transfer, sentTime float64, reckon bool) {
	if s, ok := state.(*testState); ok {
		e.state = *s
	}

	if reckon {
		e.reckons++
	} else {
		e.updates++
	}
}

type testArena struct {
	created   []uint64
	destroyed []uint64
	generics  []uint64
}

func (a *testArena) CreateEntity(id uint64, state Transfer) (Entity, error) {
	a.created = append(a.created, id)

	e := &testEntity{id: id}
	if s, ok := state.(*testState); ok {
		e.state = *s
	}
	return e, nil
}

func (a *testArena) DestroyEntity(e Entity) {
	a.destroyed = append(a.destroyed, e.UniqueID())
}

func (a *testArena) GenericMessage(id uint64, state Transfer, sentTime float64) {
	a.generics = append(a.generics, id)
}

// fakeConn records everything sent through it.
type fakeConn struct {
	label  string
	sent   []Pkt
	closed bool
}

func (c *fakeConn) Send(pkt Pkt) error {
	c.sent = append(c.sent, pkt)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) Addr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 33000}
}

// msgs decodes every replication packet recorded on c.
func (c *fakeConn) msgs(t *testing.T, ts *Transfers) []Msg {
	t.Helper()

	var out []Msg
	for _, pkt := range c.sent {
		if pkt.ChNo == chCtl {
			continue
		}

		msg, err := ts.Decode(pkt.Data)
		if err != nil {
			t.Fatalf("decoding recorded packet: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// hails returns the client identifiers of all approval hails on c.
func (c *fakeConn) hails() []byte {
	var out []byte
	for _, pkt := range c.sent {
		if pkt.ChNo == chCtl && len(pkt.Data) == 2 && pkt.Data[0] == ctlHail {
			out = append(out, pkt.Data[1])
		}
	}
	return out
}

// denies returns the reasons of all denials on c.
func (c *fakeConn) denies() []uint8 {
	var out []uint8
	for _, pkt := range c.sent {
		if pkt.ChNo == chCtl && len(pkt.Data) >= 2 && pkt.Data[0] == ctlDeny {
			out = append(out, pkt.Data[1])
		}
	}
	return out
}

// testAuthority builds an engine core with a dead reckoning interval
// long enough to stay silent unless a test forces it.
func testAuthority(t *testing.T) (*Authority, *testArena) {
	t.Helper()

	arena := &testArena{}
	return newAuthority(testTransfers(t), arena, Handlers{}, 3600), arena
}

// joinFake pushes an authenticated join for c and runs a tick, then
// returns the identifier assigned in the hail.
func joinFake(t *testing.T, a *Authority, c *fakeConn) byte {
	t.Helper()

	a.inbox <- inEvent{conn: c, join: &joinReq{conn: c, name: c.label}}
	if err := a.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	hails := c.hails()
	if len(hails) != 1 {
		t.Fatalf("expected exactly one hail for %s, got %d", c.label, len(hails))
	}
	return hails[0]
}

// inject delivers an already-encoded message from c and runs a tick.
func inject(t *testing.T, a *Authority, c Conn, msg Msg) {
	t.Helper()

	data, err := a.ts.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	a.inbox <- inEvent{conn: c, data: data}
	if err := a.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
}
