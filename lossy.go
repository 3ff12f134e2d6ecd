package replica

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// lossyConn is a net.PacketConn decorator that interferes with
// outbound traffic for testing: a configurable percentage of packets
// is dropped or duplicated and every survivor is delayed. Inbound
// traffic passes through untouched; interfering on one side of a link
// is enough to exercise both directions of the protocol.
type lossyConn struct {
	net.PacketConn

	cfg DebugConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// wrapLossy decorates pc when the debug block asks for interference.
func wrapLossy(pc net.PacketConn, cfg *DebugConfig) net.PacketConn {
	if cfg == nil || (cfg.LossPct == 0 && cfg.DupPct == 0 && cfg.MinLatencyMs == 0 && cfg.RandLatencyMs == 0) {
		return pc
	}

	return newLossyConn(pc, *cfg, time.Now().UnixNano())
}

func newLossyConn(pc net.PacketConn, cfg DebugConfig, seed int64) *lossyConn {
	return &lossyConn{
		PacketConn: pc,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (c *lossyConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	drop := c.rng.Float64()*100 < c.cfg.LossPct
	dup := c.rng.Float64()*100 < c.cfg.DupPct
	delay := c.delayLocked()
	c.mu.Unlock()

	if drop {
		// Lie about success the way a real network would.
		return len(p), nil
	}

	n := 1
	if dup {
		n = 2
	}

	if delay == 0 {
		var err error
		for i := 0; i < n; i++ {
			if _, err = c.PacketConn.WriteTo(p, addr); err != nil {
				break
			}
		}
		return len(p), err
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	for i := 0; i < n; i++ {
		time.AfterFunc(delay, func() {
			c.PacketConn.WriteTo(buf, addr)
		})
	}

	return len(p), nil
}

func (c *lossyConn) delayLocked() time.Duration {
	delay := time.Duration(c.cfg.MinLatencyMs) * time.Millisecond
	if c.cfg.RandLatencyMs > 0 {
		delay += time.Duration(c.rng.Intn(c.cfg.RandLatencyMs)) * time.Millisecond
	}
	return delay
}
