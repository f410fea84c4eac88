package protocol

import (
	"fmt"

	"github.com/blukai/rudpnet/internal/bitstream"
)

//
//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// | Type  |  Sequence Number  |     Ack Number    |   Reliable Count  |ClientID |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// then the unreliable elements, then ReliableCount × (indicator, element).
//

const (
	PacketTypeBits    = 4
	SeqBits           = 10
	AckBits           = 10
	ReliableCountBits = 10
	ClientIDBits      = 5
	IndicatorBits     = 4

	SeqMax           = 1<<SeqBits - 1
	ReliableCountMax = 1<<ReliableCountBits - 1
	ClientIDMax      = 1<<ClientIDBits - 1
	MaxIndicator     = 1<<IndicatorBits - 1
)

type PacketType int

const (
	PacketTypeGameplay PacketType = iota
	PacketTypeRequest
	PacketTypeConfirmation
	PacketTypeHeartbeat

	packetTypeMax = PacketTypeHeartbeat
)

var packetTypeToString = map[PacketType]string{
	PacketTypeGameplay:     "Gameplay",
	PacketTypeRequest:      "Request",
	PacketTypeConfirmation: "Confirmation",
	PacketTypeHeartbeat:    "Heartbeat",
}

func (t PacketType) String() string {
	s, ok := packetTypeToString[t]
	if !ok {
		return fmt.Sprintf("PacketType(%d)", int(t))
	}
	return s
}

// PacketHeader is the first element of every packet.
type PacketHeader struct {
	Type          PacketType
	SeqNumber     int
	AckNumber     int
	ReliableCount int
}

var _ Element = (*PacketHeader)(nil)

func (h *PacketHeader) ID() ElementID { return IDPacketHeader }

func (h *PacketHeader) Bits() int {
	return PacketTypeBits + SeqBits + AckBits + ReliableCountBits
}

func (h *PacketHeader) Serialize(bs *bitstream.BitStream) error {
	w := fieldWriter{bs: bs}
	w.uint(int(h.Type), PacketTypeBits)
	w.uint(h.SeqNumber, SeqBits)
	w.uint(h.AckNumber, AckBits)
	w.uint(h.ReliableCount, ReliableCountBits)
	return w.err
}

func (h *PacketHeader) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	h.Type = PacketType(r.uint(PacketTypeBits))
	h.SeqNumber = r.uint(SeqBits)
	h.AckNumber = r.uint(AckBits)
	h.ReliableCount = r.uint(ReliableCountBits)
	return r.err
}

func (h *PacketHeader) Validate() error {
	v := validator{id: h.ID()}
	v.max("type", int(h.Type), int(packetTypeMax))
	v.max("seq_number", h.SeqNumber, SeqMax)
	v.max("ack_number", h.AckNumber, SeqMax)
	v.max("reliable_count", h.ReliableCount, ReliableCountMax)
	return v.Err()
}

// ClientID follows the header in every packet but Request.
type ClientID struct {
	ClientID int
}

var _ Element = (*ClientID)(nil)

func (c *ClientID) ID() ElementID { return IDClientID }

func (c *ClientID) Bits() int { return ClientIDBits }

func (c *ClientID) Serialize(bs *bitstream.BitStream) error {
	return bs.Write(uint32(c.ClientID), 0, ClientIDBits)
}

func (c *ClientID) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	c.ClientID = r.uint(ClientIDBits)
	return r.err
}

func (c *ClientID) Validate() error {
	v := validator{id: c.ID()}
	v.max("client_id", c.ClientID, ClientIDMax)
	return v.Err()
}

// ElementIndicator precedes every element of the reliable section.
type ElementIndicator struct {
	Element ElementID
}

var _ Element = (*ElementIndicator)(nil)

func (e *ElementIndicator) ID() ElementID { return IDElementIndicator }

func (e *ElementIndicator) Bits() int { return IndicatorBits }

func (e *ElementIndicator) Serialize(bs *bitstream.BitStream) error {
	return bs.Write(uint32(e.Element), 0, IndicatorBits)
}

func (e *ElementIndicator) Deserialize(bs *bitstream.BitStream) error {
	r := fieldReader{bs: bs}
	e.Element = ElementID(r.uint(IndicatorBits))
	return r.err
}

// Validate only range checks; whether the tag names a known element is up to
// the factory.
func (e *ElementIndicator) Validate() error {
	v := validator{id: e.ID()}
	v.max("element", int(e.Element), MaxIndicator)
	return v.Err()
}

// IndicatorFor returns the indicator to write in front of e.
func IndicatorFor(e UpdateElement) *ElementIndicator {
	return &ElementIndicator{Element: e.ID()}
}
