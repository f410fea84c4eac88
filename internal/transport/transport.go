// Package transport holds the datagram plumbing shared by the lobby server and
// client.
package transport

import (
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
)

// MaxDatagramSize is the largest datagram read from the network. Packets are
// capped by the reliable bit budget well below it.
const MaxDatagramSize = 1 << 16

// Listen opens an unconnected datagram socket; both the server and the client
// talk through WriteTo/ReadFrom.
func Listen(network, address string) (net.PacketConn, error) {
	conn, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not listen %s: %w", network, err)
	}
	return conn, nil
}

// LossyPacketConn drops outgoing datagrams at random. It exists to exercise
// the reliability layer against a real socket.
type LossyPacketConn struct {
	net.PacketConn

	rate float64

	mu  sync.Mutex
	rng *rand.Rand

	dropped atomic.Uint64
}

// NewLossyPacketConn drops each written datagram with probability rate. The
// same seed drops the same sequence of writes.
func NewLossyPacketConn(conn net.PacketConn, rate float64, seed uint64) *LossyPacketConn {
	return &LossyPacketConn{
		PacketConn: conn,
		rate:       rate,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// WriteTo reports a dropped datagram as fully written, just like a network
// that loses it would.
func (c *LossyPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	drop := c.rng.Float64() < c.rate
	c.mu.Unlock()

	if drop {
		c.dropped.Add(1)
		return len(p), nil
	}
	return c.PacketConn.WriteTo(p, addr)
}

func (c *LossyPacketConn) Dropped() uint64 {
	return c.dropped.Load()
}
