package rudp

import (
	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/blukai/rudpnet/internal/debug"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/pkg/errors"
)

// Packet is one datagram. Data is sized exactly to the bits written, rounded
// up to a whole byte.
type Packet struct {
	Data []byte
}

func (p Packet) Len() int { return len(p.Data) }

// UnpackedPacket is a decoded gameplay packet.
type UnpackedPacket struct {
	Header   protocol.PacketHeader
	ClientID int

	UnreliableElements []protocol.UpdateElement
	// ReliableElements is empty unless the reliable run was exactly the next
	// one this side expected.
	ReliableElements []protocol.UpdateElement
}

// UpdateState applies unreliable elements and then reliable ones, each in
// wire order.
func (up *UnpackedPacket) UpdateState(bridge protocol.StateBridge) {
	for _, e := range up.UnreliableElements {
		e.UpdateState(bridge)
	}
	for _, e := range up.ReliableElements {
		e.UpdateState(bridge)
	}
}

// encode writes elements back to back into an exactly sized packet.
func encode(elements ...protocol.Element) (Packet, error) {
	bits := 0
	for _, e := range elements {
		bits += e.Bits()
	}

	bs := bitstream.NewSize(bits)
	for _, e := range elements {
		if err := protocol.WriteTo(bs, e); err != nil {
			return Packet{}, err
		}
	}
	return Packet{Data: bs.Bytes()}, nil
}

func readHeader(bs *bitstream.BitStream) (*protocol.PacketHeader, error) {
	e, err := protocol.CreateElement(protocol.IDPacketHeader, bs)
	if err != nil {
		return nil, err
	}
	return e.(*protocol.PacketHeader), nil
}

func readClientID(bs *bitstream.BitStream) (int, error) {
	e, err := protocol.CreateElement(protocol.IDClientID, bs)
	if err != nil {
		return 0, err
	}
	return e.(*protocol.ClientID).ClientID, nil
}

// CreateRequestPacket builds the header-only packet a client sends to ask for
// a client id.
func CreateRequestPacket() Packet {
	p, err := encode(&protocol.PacketHeader{Type: protocol.PacketTypeRequest})
	debug.Assert(err == nil)
	return p
}

// CreateConfirmationPacket builds the answer to a Request.
func CreateConfirmationPacket(clientID int) (Packet, error) {
	cid := &protocol.ClientID{ClientID: clientID}
	if err := cid.Validate(); err != nil {
		return Packet{}, err
	}
	return encode(&protocol.PacketHeader{Type: protocol.PacketTypeConfirmation}, cid)
}

// GetHeader decodes only the header of p.
func GetHeader(p Packet) (protocol.PacketHeader, error) {
	header, err := readHeader(bitstream.New(p.Data))
	if err != nil {
		return protocol.PacketHeader{}, &DecodeError{Data: p.Data, Section: SectionHeader, Err: err}
	}
	return *header, nil
}

func GetPacketType(p Packet) (protocol.PacketType, error) {
	header, err := GetHeader(p)
	return header.Type, err
}

// GetPlayerID returns the client id of any packet but a Request.
func GetPlayerID(p Packet) (int, error) {
	bs := bitstream.New(p.Data)

	header, err := readHeader(bs)
	if err != nil {
		return 0, &DecodeError{Data: p.Data, Section: SectionHeader, Err: err}
	}
	if header.Type == protocol.PacketTypeRequest {
		return 0, &DecodeError{
			Data:    p.Data,
			Section: SectionHeader,
			Err: errors.WithStack(&PacketTypeError{
				Expected: protocol.PacketTypeGameplay,
				Got:      header.Type,
			}),
		}
	}

	clientID, err := readClientID(bs)
	if err != nil {
		return 0, &DecodeError{Data: p.Data, Section: SectionClientID, Err: err}
	}
	return clientID, nil
}
