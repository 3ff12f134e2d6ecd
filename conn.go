package replica

import "net"

// Delivery channels. Lifecycle traffic needs the reliable ordered
// class; incremental updates ride the unreliable class and rely on
// dead reckoning for correction; the approval handshake has its own
// channel so its packets never mix with replication messages.
const (
	chMsg    uint8 = 0
	chUpdate uint8 = 1
	chCtl    uint8 = 2
)

// Pkt is one outbound datagram. Unrel selects the unreliable delivery
// class; reliable packets arrive ordered or not at all.
type Pkt struct {
	Data  []byte
	ChNo  uint8
	Unrel bool
}

// A Conn is an opaque handle for one remote peer. The engines, maps
// and events only ever see this interface, never the transport's
// concrete connection type.
type Conn interface {
	Send(pkt Pkt) error
	Close() error
	Addr() net.Addr
}

// sendMsg encodes msg and sends it on the delivery class its type
// demands: updates unreliable, everything else reliable ordered.
func sendMsg(c Conn, ts *Transfers, msg Msg) error {
	data, err := ts.Encode(msg)
	if err != nil {
		return err
	}

	return c.Send(pktFor(msg.Type, data))
}

func pktFor(typ MsgType, data []byte) Pkt {
	if typ == MsgUpdate {
		return Pkt{Data: data, ChNo: chUpdate, Unrel: true}
	}
	return Pkt{Data: data, ChNo: chMsg}
}
