package replica

import (
	"log"
	"time"
)

// Client is the non-authority engine role. It owns a slice of the
// identifier space, requests changes by sending them to the authority
// and applies whatever comes back; it never relays. A client does not
// self-apply its own create and destroy requests: the authoritative
// echo arrives as an ordinary inbound message, so the authority's
// ordering decision holds even for the requesting owner.
type Client struct {
	*session

	conn      Conn
	clientID  byte
	connected bool

	localSeq uint32

	// clockOff maps the local monotonic clock onto the authority
	// clock; resynchronised from the sentTime of every inbound
	// message.
	clockOff float64

	transport *clientTransport
}

func newClient(ts *Transfers, arena Arena, h Handlers, reckonInterval float64) *Client {
	return &Client{session: newSession(ts, arena, h, reckonInterval)}
}

// attach binds the client to its authority connection after the
// approval handshake assigned an identifier.
func (c *Client) attach(conn Conn, clientID byte) {
	c.conn = conn
	c.clientID = clientID
	c.connected = true
}

func (c *Client) ClientID() byte { return c.clientID }

func (c *Client) elapsed() float64 {
	return time.Since(c.started).Seconds()
}

// now estimates the authority clock.
func (c *Client) now() float64 {
	return c.elapsed() + c.clockOff
}

func (c *Client) Update() error {
	dt := c.tick()

drain:
	for {
		select {
		case ev := <-c.inbox:
			c.dispatch(ev)
		default:
			break drain
		}
	}

	if c.reckon.advance(dt) && c.connected {
		c.sendReckoning()
	}

	c.publishDiag()
	return nil
}

func (c *Client) dispatch(ev inEvent) {
	if ev.gone {
		c.connected = false

		msg := "authority connection lost"
		if ev.timedOut {
			msg += " (timed out)"
		}
		log.Print(msg)

		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected(ClientIDAuthority)
		}
		return
	}

	msg, err := c.ts.Decode(ev.data)
	if err != nil {
		log.Printf("dropping message from authority: %v", err)
		return
	}

	c.clockOff = msg.SentTime - c.elapsed()
	c.handleMsg(msg)
}

func (c *Client) handleMsg(msg Msg) {
	switch msg.Type {
	case MsgCreate:
		c.applyCreate(msg)
	case MsgUpdate:
		c.applyUpdate(msg)
	case MsgDestroy:
		c.applyDestroy(msg)
	case MsgReckon:
		c.applyReckon(msg)
	case MsgGeneric:
		c.applyGeneric(msg)
	}
}

// sendReckoning resends the full state of every entity this client
// owns. The authority covers everything else.
func (c *Client) sendReckoning() {
	for _, id := range c.ents.ownedBy(c.clientID) {
		e, ok := c.ents.get(id)
		if !ok {
			continue
		}

		msg := Msg{SentTime: c.now(), Type: MsgReckon, ID: id, State: e.TransferState()}
		if err := sendMsg(c.conn, c.ts, msg); err != nil {
			log.Print(err)
		}
	}
}

func (c *Client) send(msg Msg) error {
	if !c.connected {
		return ErrNotConnected
	}

	msg.SentTime = c.now()
	return sendMsg(c.conn, c.ts, msg)
}

func (c *Client) RequestCreate(state Transfer) (uint64, error) {
	if !c.connected {
		return 0, ErrNotConnected
	}

	id := PackID(c.clientID, c.localSeq)
	c.localSeq++

	if err := c.send(Msg{Type: MsgCreate, ID: id, State: state}); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) RequestUpdate(id uint64, state Transfer) error {
	return c.send(Msg{Type: MsgUpdate, ID: id, State: state})
}

func (c *Client) RequestDestroy(id uint64) error {
	return c.send(Msg{Type: MsgDestroy, ID: id})
}

func (c *Client) SendGeneric(id uint64, state Transfer) error {
	return c.send(Msg{Type: MsgGeneric, ID: id, State: state})
}

func (c *Client) Close() error {
	c.connected = false

	if c.conn != nil {
		c.conn.Close()
	}
	if c.transport != nil {
		return c.transport.close()
	}
	return nil
}

func (c *Client) publishDiag() {
	conns := 0
	if c.connected {
		conns = 1
	}

	c.diag.publish(Snapshot{
		Role:       "client",
		ClientID:   c.clientID,
		Time:       c.now(),
		Conns:      conns,
		Entities:   c.ents.len(),
		NextReckon: c.reckon.left,
	})
}
