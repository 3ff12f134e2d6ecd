package replica

import (
	"log"
	"time"
)

// Authority is the engine role whose state is canonical. It approves
// connections, assigns client identifiers and relays all traffic
// between the other peers: consistency always flows through it.
type Authority struct {
	*session

	// conns is the client identifier map. Identifiers are handed out
	// in connection order and never reclaimed, which caps a session
	// at 254 clients over its lifetime.
	conns        map[byte]Conn
	ids          map[Conn]byte
	nextClientID int

	localSeq uint32

	transport *authorityTransport
}

// newAuthority builds the engine core without any transport attached.
// NewAuthority in this package wires it to a rudp listener.
func newAuthority(ts *Transfers, arena Arena, h Handlers, reckonInterval float64) *Authority {
	return &Authority{
		session:      newSession(ts, arena, h, reckonInterval),
		conns:        make(map[byte]Conn),
		ids:          make(map[Conn]byte),
		nextClientID: int(ClientIDMin),
	}
}

// ClientID returns 1, the reserved authority identifier.
func (a *Authority) ClientID() byte { return ClientIDAuthority }

// now returns the authority clock: seconds since the session started.
// This clock stamps every outbound message.
func (a *Authority) now() float64 {
	return time.Since(a.started).Seconds()
}

func (a *Authority) Update() error {
	dt := a.tick()

drain:
	for {
		select {
		case ev := <-a.inbox:
			a.dispatch(ev)
		default:
			break drain
		}
	}

	if a.reckon.advance(dt) {
		a.sendReckoning()
	}

	a.publishDiag()
	return nil
}

func (a *Authority) dispatch(ev inEvent) {
	switch {
	case ev.join != nil:
		a.approve(ev.join)
	case ev.gone:
		a.dropConn(ev.conn, ev.timedOut)
	default:
		msg, err := a.ts.Decode(ev.data)
		if err != nil {
			log.Printf("dropping message from %s: %v", ev.conn.Addr(), err)
			return
		}

		a.handleMsg(ev.conn, msg)
	}
}

// approve assigns the next client identifier and returns it to the
// peer inside the approval hail. Identifier exhaustion refuses the
// connection and leaves the client identifier map untouched.
func (a *Authority) approve(j *joinReq) {
	if a.nextClientID > 0xff {
		log.Printf("refusing %s: %v", j.conn.Addr(), ErrTooManyClients)
		sendDeny(j.conn, denyFull, ErrTooManyClients.Error())
		j.conn.Close()
		return
	}

	id := byte(a.nextClientID)
	a.nextClientID++

	a.conns[id] = j.conn
	a.ids[j.conn] = id

	if err := sendHail(j.conn, id); err != nil {
		log.Print(err)
	}

	name := j.name
	if name == "" {
		name = j.conn.Addr().String()
	}
	log.Printf("%s connected as client %d", name, id)

	if a.handlers.ClientConnected != nil {
		a.handlers.ClientConnected(id)
	}
}

// dropConn removes a departed connection and garbage collects its
// entities: an entity dies with the client that owns its identifier.
// The destroys are relayed to the remaining peers first, then applied.
func (a *Authority) dropConn(c Conn, timedOut bool) {
	id, ok := a.ids[c]
	if !ok {
		return
	}

	delete(a.ids, c)
	delete(a.conns, id)

	msg := "client " + c.Addr().String() + " disconnected"
	if timedOut {
		msg += " (timed out)"
	}
	log.Print(msg)

	for _, eid := range a.ents.ownedBy(id) {
		destroy := Msg{Type: MsgDestroy, ID: eid}
		if err := a.broadcast(destroy, nil); err != nil {
			log.Print(err)
		}
		a.applyDestroy(destroy)
	}

	if a.handlers.Disconnected != nil {
		a.handlers.Disconnected(id)
	}
}

// handleMsg applies one inbound message and rebroadcasts it. Create
// and Destroy are re-originated to every connection including the
// sender: the echo is the sender's authoritative confirmation and a
// client never self-applies its own lifecycle requests. Everything
// else is relayed to every connection except the sender, exactly once,
// since the sender already holds that state.
func (a *Authority) handleMsg(from Conn, msg Msg) {
	switch msg.Type {
	case MsgCreate:
		a.applyCreate(msg)
		a.relay(msg, nil)
	case MsgDestroy:
		a.relay(msg, nil)
		a.applyDestroy(msg)
	case MsgUpdate:
		a.applyUpdate(msg)
		a.relay(msg, from)
	case MsgReckon:
		a.applyReckon(msg)
		a.relay(msg, from)
	case MsgGeneric:
		a.applyGeneric(msg)
		a.relay(msg, from)
	}
}

func (a *Authority) relay(msg Msg, except Conn) {
	if err := a.broadcast(msg, except); err != nil {
		log.Print(err)
	}
}

// broadcast stamps msg with the authority clock, encodes it once and
// sends it to every connection but except. It validates the payload
// type even when nobody is connected, so an unregistered type always
// surfaces at the call site.
func (a *Authority) broadcast(msg Msg, except Conn) error {
	msg.SentTime = a.now()

	data, err := a.ts.Encode(msg)
	if err != nil {
		return err
	}

	pkt := pktFor(msg.Type, data)
	for _, c := range a.conns {
		if c == except {
			continue
		}

		if err := c.Send(pkt); err != nil {
			log.Print(err)
		}
	}

	return nil
}

// sendReckoning resends the full state of every live entity to every
// connection over the reliable channel.
func (a *Authority) sendReckoning() {
	a.ents.each(func(e Entity) {
		msg := Msg{Type: MsgReckon, ID: e.UniqueID(), State: e.TransferState()}
		if err := a.broadcast(msg, nil); err != nil {
			log.Print(err)
		}
	})
}

func (a *Authority) RequestCreate(state Transfer) (uint64, error) {
	id := PackID(ClientIDAuthority, a.localSeq)
	a.localSeq++

	msg := Msg{Type: MsgCreate, ID: id, State: state}
	if err := a.broadcast(msg, nil); err != nil {
		return 0, err
	}

	a.applyCreate(msg)
	return id, nil
}

func (a *Authority) RequestUpdate(id uint64, state Transfer) error {
	msg := Msg{Type: MsgUpdate, ID: id, State: state}
	if err := a.broadcast(msg, nil); err != nil {
		return err
	}

	a.applyUpdate(msg)
	return nil
}

func (a *Authority) RequestDestroy(id uint64) error {
	msg := Msg{Type: MsgDestroy, ID: id}
	if err := a.broadcast(msg, nil); err != nil {
		return err
	}

	a.applyDestroy(msg)
	return nil
}

func (a *Authority) SendGeneric(id uint64, state Transfer) error {
	return a.broadcast(Msg{Type: MsgGeneric, ID: id, State: state}, nil)
}

func (a *Authority) Close() error {
	for id, c := range a.conns {
		c.Close()
		delete(a.conns, id)
		delete(a.ids, c)
	}

	if a.transport != nil {
		return a.transport.close()
	}
	return nil
}

func (a *Authority) publishDiag() {
	a.diag.publish(Snapshot{
		Role:       "authority",
		ClientID:   ClientIDAuthority,
		Time:       a.now(),
		Conns:      len(a.conns),
		Entities:   a.ents.len(),
		NextReckon: a.reckon.left,
	})
}
