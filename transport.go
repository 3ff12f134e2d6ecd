package replica

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/HimbeerserverDE/srp"
	"github.com/anon55555/mt/rudp"
)

// handshakeTimeout caps how long a peer may take to finish the
// approval handshake.
const handshakeTimeout = 8 * time.Second

// Control packets travel on chCtl and never mix with replication
// messages.
const (
	ctlHello uint8 = iota // client: bytes16 name
	ctlAuthMech           // authority: mech uint8
	ctlSrpRegister        // client: bytes16 salt, bytes16 verifier
	ctlSrpBytesA          // client: bytes16 A
	ctlSrpBytesSB         // authority: bytes16 salt, bytes16 B
	ctlSrpBytesM          // client: bytes16 M
	ctlHail               // authority: clientID uint8
	ctlDeny               // authority: reason uint8, bytes16 text
)

const (
	authMechNone uint8 = iota
	authMechFirstSRP
	authMechSRP
)

const (
	denyAuthFailed uint8 = iota
	denyBanned
	denyFull
)

// rudpConn adapts a rudp peer to the Conn handle the engines use.
type rudpConn struct {
	p *rudp.Peer
}

func (c *rudpConn) Send(pkt Pkt) error {
	_, err := c.p.Send(rudp.Pkt{Data: pkt.Data, ChNo: pkt.ChNo, Unrel: pkt.Unrel})
	return err
}

func (c *rudpConn) Close() error {
	c.p.SendDisco(0, true)
	return c.p.Close()
}

func (c *rudpConn) Addr() net.Addr { return c.p.Addr() }

func sendHail(c Conn, clientID byte) error {
	return c.Send(Pkt{Data: []byte{ctlHail, clientID}, ChNo: chCtl})
}

func sendDeny(c Conn, reason uint8, text string) error {
	w := &bytes.Buffer{}
	WriteUint8(w, ctlDeny)
	WriteUint8(w, reason)
	WriteBytes16(w, []byte(text))

	return c.Send(Pkt{Data: w.Bytes(), ChNo: chCtl})
}

func denyErr(reason uint8, text string) error {
	switch reason {
	case denyBanned:
		return ErrBanned
	case denyFull:
		return ErrTooManyClients
	case denyAuthFailed:
		return ErrAuthFailed
	}
	return fmt.Errorf("connection refused: %s", text)
}

// pump moves inbound packets from the transport into the engine's
// inbox until the connection dies.
func pump(c *rudpConn, inbox chan<- inEvent) {
	for {
		pkt, err := c.p.Recv()
		if err != nil {
			if errors.Is(err, rudp.ErrClosed) {
				inbox <- inEvent{conn: c, gone: true, timedOut: c.p.TimedOut()}
				return
			}

			log.Print(err)
			continue
		}

		if pkt.ChNo == chCtl {
			// Control traffic after the handshake is a peer
			// misbehaving; drop it.
			continue
		}

		inbox <- inEvent{conn: c, data: pkt.Data}
	}
}

type authorityTransport struct {
	pc net.PacketConn
	l  *rudp.Listener
	db *AuthDB

	auth  bool
	inbox chan<- inEvent
}

// NewAuthority starts serving a session on cfg.Address. The returned
// engine accepts, authenticates and approves clients in the background
// but applies all protocol state changes inside Update.
func NewAuthority(cfg *Config, ts *Transfers, arena Arena, h Handlers) (*Authority, error) {
	a := newAuthority(ts, arena, h, cfg.ReckonInterval)

	var db *AuthDB
	if cfg.Auth.Enabled {
		var err error
		if db, err = OpenAuthDB(cfg.Auth.DB); err != nil {
			return nil, err
		}
	}

	pc, err := net.ListenPacket("udp", cfg.Address)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	t := &authorityTransport{
		pc:    wrapLossy(pc, &cfg.Debug),
		db:    db,
		auth:  cfg.Auth.Enabled,
		inbox: a.inbox,
	}
	t.l = rudp.Listen(t.pc)
	a.transport = t

	go t.acceptLoop()

	if cfg.DiagAddress != "" {
		go serveDiag(cfg.DiagAddress, a.diag)
	}

	log.Print(cfg.Name + " listening on " + cfg.Address)
	return a, nil
}

func (t *authorityTransport) close() error {
	if t.db != nil {
		t.db.Close()
	}
	return t.pc.Close()
}

// acceptLoop keeps accepting until the listener dies.
func (t *authorityTransport) acceptLoop() {
	for {
		p, err := t.l.Accept()
		if err != nil {
			if errors.Is(err, rudp.ErrClosed) || errors.Is(err, net.ErrClosed) {
				return
			}

			log.Print(err)
			continue
		}

		go t.approve(&rudpConn{p: p})
	}
}

// approve runs the connection approval stages that need no engine
// state: the ban check and the authentication exchange. Survivors are
// handed to the engine as join requests; Update assigns the client
// identifier and answers with the hail.
func (t *authorityTransport) approve(c *rudpConn) {
	name, err := t.handshake(c)
	if err != nil {
		log.Printf("refusing %s: %v", c.Addr(), err)
		c.Close()
		return
	}

	t.inbox <- inEvent{conn: c, join: &joinReq{conn: c, name: name}}
	pump(c, t.inbox)
}

func (t *authorityTransport) handshake(c *rudpConn) (string, error) {
	deadline := time.After(handshakeTimeout)

	pkt, err := recvCtl(c, deadline)
	if err != nil {
		return "", err
	}

	name, err := parseHello(pkt)
	if err != nil {
		return "", err
	}

	if t.db != nil {
		if addr, ok := banAddr(c.Addr()); ok {
			banned, banName, err := t.db.IsBanned(addr)
			if err != nil {
				return "", err
			}
			if banned {
				sendDeny(c, denyBanned, banName)
				return "", ErrBanned
			}
		}
	}

	mech := authMechNone
	var s, v []byte
	if t.auth {
		record, err := t.db.Verifier(name)
		if err != nil {
			return "", err
		}

		if record == "" {
			mech = authMechFirstSRP
		} else {
			mech = authMechSRP
			if s, v, err = decodeVerifierAndSalt(record); err != nil {
				return "", err
			}
		}
	}

	if err := c.Send(Pkt{Data: []byte{ctlAuthMech, mech}, ChNo: chCtl}); err != nil {
		return "", err
	}

	switch mech {
	case authMechFirstSRP:
		if err := t.register(c, name, deadline); err != nil {
			sendDeny(c, denyAuthFailed, err.Error())
			return "", err
		}
	case authMechSRP:
		if err := t.verify(c, name, s, v, deadline); err != nil {
			sendDeny(c, denyAuthFailed, err.Error())
			return "", err
		}
	}

	return name, nil
}

// register stores the salt and verifier of a name seen for the first
// time.
func (t *authorityTransport) register(c *rudpConn, name string, deadline <-chan time.Time) error {
	pkt, err := recvCtl(c, deadline)
	if err != nil {
		return err
	}

	s, v, err := parseRegister(pkt)
	if err != nil {
		return err
	}

	return t.db.SetVerifier(name, encodeVerifierAndSalt(s, v))
}

// verify runs the authority's half of the SRP exchange against the
// stored verifier.
func (t *authorityTransport) verify(c *rudpConn, name string, s, v []byte, deadline <-chan time.Time) error {
	pkt, err := recvCtl(c, deadline)
	if err != nil {
		return err
	}

	A, err := parseSrpBytes(pkt, ctlSrpBytesA)
	if err != nil {
		return err
	}

	B, _, K, err := srp.Handshake(A, v)
	if err != nil {
		return err
	}

	w := &bytes.Buffer{}
	WriteUint8(w, ctlSrpBytesSB)
	WriteBytes16(w, s)
	WriteBytes16(w, B)
	if err := c.Send(Pkt{Data: w.Bytes(), ChNo: chCtl}); err != nil {
		return err
	}

	pkt, err = recvCtl(c, deadline)
	if err != nil {
		return err
	}

	M, err := parseSrpBytes(pkt, ctlSrpBytesM)
	if err != nil {
		return err
	}

	expected := srp.CalculateM([]byte(name), s, A, B, K)
	if subtle.ConstantTimeCompare(M, expected) != 1 {
		return ErrAuthFailed
	}

	return nil
}

// The parse helpers below take a raw control packet and never trust
// its length. Anything a peer can put on the wire comes back as an
// error, not a panic.

func parseHello(pkt []byte) (string, error) {
	if len(pkt) < 1 {
		return "", errors.New("empty control packet")
	}
	if pkt[0] != ctlHello {
		return "", fmt.Errorf("unexpected control packet %d", pkt[0])
	}

	name, err := ReadBytes16(bytes.NewReader(pkt[1:]))
	if err != nil {
		return "", err
	}
	return string(name), nil
}

func parseRegister(pkt []byte) (s, v []byte, err error) {
	if len(pkt) < 1 || pkt[0] != ctlSrpRegister {
		return nil, nil, ErrAuthFailed
	}

	r := bytes.NewReader(pkt[1:])
	if s, err = ReadBytes16(r); err != nil {
		return nil, nil, err
	}
	if v, err = ReadBytes16(r); err != nil {
		return nil, nil, err
	}
	return s, v, nil
}

// parseSrpBytes decodes the single bytes16 field packets of the SRP
// exchange (A and M).
func parseSrpBytes(pkt []byte, op uint8) ([]byte, error) {
	if len(pkt) < 1 || pkt[0] != op {
		return nil, ErrAuthFailed
	}
	return ReadBytes16(bytes.NewReader(pkt[1:]))
}

func parseAuthMech(pkt []byte) (uint8, error) {
	if len(pkt) < 2 || pkt[0] != ctlAuthMech {
		return 0, ErrAuthFailed
	}
	return pkt[1], nil
}

func parseSrpSaltB(pkt []byte) (s, B []byte, err error) {
	if len(pkt) < 1 || pkt[0] != ctlSrpBytesSB {
		return nil, nil, ErrAuthFailed
	}

	r := bytes.NewReader(pkt[1:])
	if s, err = ReadBytes16(r); err != nil {
		return nil, nil, err
	}
	if B, err = ReadBytes16(r); err != nil {
		return nil, nil, err
	}
	return s, B, nil
}

func parseHail(pkt []byte) (byte, error) {
	if len(pkt) < 2 || pkt[0] != ctlHail || pkt[1] < ClientIDMin {
		return 0, errors.New("invalid approval hail")
	}
	return pkt[1], nil
}

func parseDeny(pkt []byte) error {
	reason := denyAuthFailed
	var text []byte
	if len(pkt) >= 2 {
		reason = pkt[1]
		text, _ = ReadBytes16(bytes.NewReader(pkt[2:]))
	}
	return denyErr(reason, string(text))
}

// banAddr extracts the address form ban records are keyed by. Conns
// not backed by UDP carry no bannable address.
func banAddr(a net.Addr) (string, bool) {
	udp, ok := a.(*net.UDPAddr)
	if !ok {
		return "", false
	}
	return udp.IP.String(), true
}

// recvCtl reads the next control packet, skipping anything a confused
// peer sends on the replication channels before it is approved.
func recvCtl(c *rudpConn, deadline <-chan time.Time) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	res := make(chan result, 1)

	go func() {
		for {
			pkt, err := c.p.Recv()
			if err != nil {
				res <- result{err: err}
				return
			}

			if pkt.ChNo != chCtl {
				continue
			}

			res <- result{data: pkt.Data}
			return
		}
	}()

	select {
	case <-deadline:
		return nil, fmt.Errorf("%s: handshake timed out", c.Addr())
	case r := <-res:
		return r.data, r.err
	}
}

type clientTransport struct {
	pc net.PacketConn
}

func (t *clientTransport) close() error { return t.pc.Close() }

// Dial joins the session served at cfg.Address and blocks until the
// authority's approval hail assigned a client identifier, the
// connection is refused, or the handshake times out.
func Dial(cfg *Config, ts *Transfers, arena Arena, h Handlers) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, err
	}

	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}

	c := newClient(ts, arena, h, cfg.ReckonInterval)
	c.transport = &clientTransport{pc: wrapLossy(pc, &cfg.Debug)}

	conn := &rudpConn{p: rudp.Connect(c.transport.pc, raddr)}

	clientID, err := clientHandshake(conn, cfg)
	if err != nil {
		conn.Close()
		c.transport.close()
		return nil, err
	}

	c.attach(conn, clientID)
	go pump(conn, c.inbox)

	if cfg.DiagAddress != "" {
		go serveDiag(cfg.DiagAddress, c.diag)
	}

	log.Printf("connected to %s as client %d", cfg.Address, clientID)

	if h.Connected != nil {
		h.Connected(clientID)
	}
	return c, nil
}

// clientHandshake runs the client's half of the approval handshake:
// hello, the authentication stage the authority picked, then the hail
// carrying this peer's client identifier.
func clientHandshake(conn *rudpConn, cfg *Config) (byte, error) {
	deadline := time.After(handshakeTimeout)

	hello := &bytes.Buffer{}
	WriteUint8(hello, ctlHello)
	WriteBytes16(hello, []byte(cfg.Auth.Name))
	if err := conn.Send(Pkt{Data: hello.Bytes(), ChNo: chCtl}); err != nil {
		return 0, err
	}

	authKey := []byte(strings.ToLower(cfg.Auth.Name))
	pass := []byte(cfg.Auth.Password)

	var A, a []byte

	for {
		pkt, err := recvCtl(conn, deadline)
		if err != nil {
			return 0, err
		}
		if len(pkt) < 1 {
			continue
		}

		switch pkt[0] {
		case ctlAuthMech:
			mech, err := parseAuthMech(pkt)
			if err != nil {
				return 0, err
			}

			switch mech {
			case authMechNone:
			case authMechFirstSRP:
				s, v, err := srp.NewClient(authKey, pass)
				if err != nil {
					return 0, err
				}

				w := &bytes.Buffer{}
				WriteUint8(w, ctlSrpRegister)
				WriteBytes16(w, s)
				WriteBytes16(w, v)
				if err := conn.Send(Pkt{Data: w.Bytes(), ChNo: chCtl}); err != nil {
					return 0, err
				}
			case authMechSRP:
				if A, a, err = srp.InitiateHandshake(); err != nil {
					return 0, err
				}

				w := &bytes.Buffer{}
				WriteUint8(w, ctlSrpBytesA)
				WriteBytes16(w, A)
				if err := conn.Send(Pkt{Data: w.Bytes(), ChNo: chCtl}); err != nil {
					return 0, err
				}
			}
		case ctlSrpBytesSB:
			s, B, err := parseSrpSaltB(pkt)
			if err != nil {
				return 0, err
			}

			K, err := srp.CompleteHandshake(A, a, authKey, pass, s, B)
			if err != nil {
				return 0, err
			}

			M := srp.CalculateM([]byte(cfg.Auth.Name), s, A, B, K)

			w := &bytes.Buffer{}
			WriteUint8(w, ctlSrpBytesM)
			WriteBytes16(w, M)
			if err := conn.Send(Pkt{Data: w.Bytes(), ChNo: chCtl}); err != nil {
				return 0, err
			}
		case ctlHail:
			return parseHail(pkt)
		case ctlDeny:
			return 0, parseDeny(pkt)
		}
	}
}
