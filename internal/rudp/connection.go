// Package rudp adds selective reliability on top of unordered, lossy
// datagrams.
//
// Every gameplay packet carries two sections. The unreliable section is sent
// once and its layout is agreed on out of band. The reliable section is a run
// of elements taken from a ring buffer; an element stays in the buffer and
// keeps being resent until the peer's ack moves past it.
//
//	          LastKnownWanted          MessageIndex
//	                 v                       v
//	+---+---+---+---+---+---+---+---+---+---+---+---+
//	|   |   |   |   | 4 | 5 | 6 | 7 | 8 | 9 |   |   |  ring of BufferSize slots
//	+---+---+---+---+---+---+---+---+---+---+---+---+
//	  acked, cleared \_______ in flight _______/ free
//
// A receiver only accepts a reliable run that starts exactly at its own
// CurrentAck, which makes duplicates and runs behind a gap no-ops. Sequence
// and ack numbers are absolute indices reduced mod BufferSize on the wire.
//
// A Connection is not safe for concurrent use.
package rudp

import (
	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/blukai/rudpnet/internal/debug"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/pkg/errors"
)

const (
	BufferSize = 1 << protocol.SeqBits
	// MaxInFlight keeps a 10 bit ack unambiguous: "everything acked" and
	// "nothing acked" must never land on the same value.
	MaxInFlight = BufferSize - 1
	// MaxReliableBits caps the reliable section of a single packet, tags
	// included. The first element of a run is admitted even if it alone is
	// larger.
	MaxReliableBits = 8192
	// ResendDelay is counted in CreatePacket calls, not wall clock time.
	ResendDelay = 3
)

func wrap(index int) int {
	return index & (BufferSize - 1)
}

type Connection struct {
	clientID int

	buffer [BufferSize]protocol.UpdateElement
	timers [BufferSize]int

	// absolute element indices
	messageIndex    int
	lastKnownWanted int
	currentAck      int
}

func NewConnection(clientID int) *Connection {
	debug.Assertf(clientID >= 0 && clientID <= protocol.ClientIDMax, "invalid client id %d", clientID)
	return &Connection{clientID: clientID}
}

func (c *Connection) ClientID() int { return c.clientID }

// MessageIndex is the number of reliable elements ever enqueued.
func (c *Connection) MessageIndex() int { return c.messageIndex }

// LastKnownWanted is the oldest of our reliable elements the peer has not
// acknowledged yet.
func (c *Connection) LastKnownWanted() int { return c.lastKnownWanted }

// CurrentAck is the number of the peer's reliable elements accepted so far.
func (c *Connection) CurrentAck() int { return c.currentAck }

func (c *Connection) InFlight() int { return c.messageIndex - c.lastKnownWanted }

// CreatePacket enqueues reliable, picks the reliable elements due for
// (re)sending and serializes a gameplay packet. Elements are retained by the
// connection and must not be modified afterwards.
//
// Nothing is enqueued when an error is returned. If the batch does not fit
// into the buffer the error matches ErrBufferFull.
func (c *Connection) CreatePacket(unreliable, reliable []protocol.UpdateElement) (Packet, error) {
	if inFlight := c.InFlight(); inFlight+len(reliable) > MaxInFlight {
		return Packet{}, errors.WithStack(&BufferFullError{
			InFlight:  inFlight,
			Requested: len(reliable),
		})
	}
	for _, e := range unreliable {
		if err := e.Validate(); err != nil {
			return Packet{}, errors.Wrap(err, "could not validate unreliable element")
		}
	}
	for _, e := range reliable {
		if err := e.Validate(); err != nil {
			return Packet{}, errors.Wrap(err, "could not validate reliable element")
		}
	}

	for _, e := range reliable {
		slot := wrap(c.messageIndex)
		c.buffer[slot] = e
		c.timers[slot] = 0
		c.messageIndex++
	}

	selected, last := c.selectReliable()

	seq := c.messageIndex - 1
	if len(selected) > 0 {
		seq = last
	}

	header := &protocol.PacketHeader{
		Type:          protocol.PacketTypeGameplay,
		SeqNumber:     wrap(seq),
		AckNumber:     wrap(c.currentAck),
		ReliableCount: len(selected),
	}

	elements := make([]protocol.Element, 0, 2+len(unreliable)+2*len(selected))
	elements = append(elements, header, &protocol.ClientID{ClientID: c.clientID})
	for _, e := range unreliable {
		elements = append(elements, e)
	}
	for _, e := range selected {
		elements = append(elements, protocol.IndicatorFor(e), e)
	}

	return encode(elements...)
}

// selectReliable walks the in flight window oldest first. Once one element is
// due, every element after it is sent too so the run stays contiguous.
func (c *Connection) selectReliable() ([]protocol.UpdateElement, int) {
	var (
		selected []protocol.UpdateElement
		last     int
		bits     int
		resend   bool
	)

	for i := c.lastKnownWanted; i < c.messageIndex; i++ {
		slot := wrap(i)
		if !resend && c.timers[slot] > 0 {
			c.timers[slot]--
			continue
		}
		resend = true

		e := c.buffer[slot]
		size := protocol.IndicatorBits + e.Bits()
		if len(selected) > 0 && bits+size > MaxReliableBits {
			break
		}
		if len(selected) == protocol.ReliableCountMax {
			break
		}

		selected = append(selected, e)
		last = i
		bits += size
		c.timers[slot] = ResendDelay
	}

	return selected, last
}

// CreateHeartbeatPacket builds a packet with no elements that only carries
// the current ack. Resend timers are not touched.
func (c *Connection) CreateHeartbeatPacket() Packet {
	p, err := encode(
		&protocol.PacketHeader{
			Type:      protocol.PacketTypeHeartbeat,
			SeqNumber: wrap(c.messageIndex - 1),
			AckNumber: wrap(c.currentAck),
		},
		&protocol.ClientID{ClientID: c.clientID},
	)
	debug.Assert(err == nil)
	return p
}

// ProcessPacket decodes a gameplay packet. expected lists the element kinds of
// the unreliable section in order.
func (c *Connection) ProcessPacket(p Packet, expected []protocol.ElementID) (*UnpackedPacket, error) {
	bs := bitstream.New(p.Data)

	header, clientID, err := c.processPreamble(p, bs, protocol.PacketTypeGameplay)
	if err != nil {
		return nil, err
	}

	up := &UnpackedPacket{
		Header:             *header,
		ClientID:           clientID,
		UnreliableElements: make([]protocol.UpdateElement, 0, len(expected)),
	}

	for _, id := range expected {
		e, err := protocol.CreateUpdateElement(id, bs)
		if err != nil {
			return nil, &DecodeError{Data: p.Data, Expected: expected, Section: SectionUnreliable, Err: err}
		}
		up.UnreliableElements = append(up.UnreliableElements, e)
	}

	count := header.ReliableCount
	if count == 0 || wrap(c.currentAck+count-1) != header.SeqNumber {
		return up, nil
	}

	reliable := make([]protocol.UpdateElement, 0, count)
	for i := 0; i < count; i++ {
		e, err := readIndicated(bs)
		if err != nil {
			return nil, &DecodeError{Data: p.Data, Expected: expected, Section: SectionReliable, Err: err}
		}
		reliable = append(reliable, e)
	}

	c.currentAck += count
	up.ReliableElements = reliable

	return up, nil
}

func readIndicated(bs *bitstream.BitStream) (protocol.UpdateElement, error) {
	e, err := protocol.CreateElement(protocol.IDElementIndicator, bs)
	if err != nil {
		return nil, err
	}
	return protocol.CreateUpdateElement(e.(*protocol.ElementIndicator).Element, bs)
}

// ProcessHeartbeat applies the ack of a heartbeat packet and returns the
// sender's client id.
func (c *Connection) ProcessHeartbeat(p Packet) (int, error) {
	_, clientID, err := c.processPreamble(p, bitstream.New(p.Data), protocol.PacketTypeHeartbeat)
	return clientID, err
}

func (c *Connection) processPreamble(
	p Packet,
	bs *bitstream.BitStream,
	want protocol.PacketType,
) (*protocol.PacketHeader, int, error) {
	header, err := readHeader(bs)
	if err != nil {
		return nil, 0, &DecodeError{Data: p.Data, Section: SectionHeader, Err: err}
	}
	if header.Type != want {
		return nil, 0, &DecodeError{
			Data:    p.Data,
			Section: SectionHeader,
			Err:     errors.WithStack(&PacketTypeError{Expected: want, Got: header.Type}),
		}
	}

	clientID, err := readClientID(bs)
	if err != nil {
		return nil, 0, &DecodeError{Data: p.Data, Section: SectionClientID, Err: err}
	}

	c.ack(header.AckNumber)

	return header, clientID, nil
}

// ack retires every element below the peer's ack. The 10 bit value is widened
// to the largest absolute index not above MessageIndex; acks older than what
// is already known are ignored.
func (c *Connection) ack(ack int) {
	floor := c.messageIndex - wrap(c.messageIndex-ack)
	if floor <= c.lastKnownWanted {
		return
	}

	for i := c.lastKnownWanted; i < floor; i++ {
		slot := wrap(i)
		c.buffer[slot] = nil
		c.timers[slot] = 0
	}
	c.lastKnownWanted = floor
}
