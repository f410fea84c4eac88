package rudp_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/blukai/rudpnet/internal/bitstream"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/blukai/rudpnet/internal/rudp"
	"github.com/matryer/is"
)

func health(actorID int) protocol.UpdateElement {
	return &protocol.Health{ActorID: actorID % (protocol.HealthActorIDMax + 1), Health: 1}
}

func TestHealthPacket(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(5)
	peer := rudp.NewConnection(0)

	packet, err := conn.CreatePacket([]protocol.UpdateElement{
		&protocol.Health{ActorID: 10, Health: 10},
	}, nil)
	is.NoErr(err)

	playerID, err := rudp.GetPlayerID(packet)
	is.NoErr(err)
	is.Equal(playerID, 5)

	packetType, err := rudp.GetPacketType(packet)
	is.NoErr(err)
	is.Equal(packetType, protocol.PacketTypeGameplay)

	up, err := peer.ProcessPacket(packet, []protocol.ElementID{protocol.IDHealth})
	is.NoErr(err)
	is.Equal(up.ClientID, 5)
	is.Equal(len(up.UnreliableElements), 1)
	is.Equal(len(up.ReliableElements), 0)
	is.Equal(up.UnreliableElements[0], &protocol.Health{ActorID: 10, Health: 10})
}

func TestPacketSize(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(1)

	// header(34) + client id(5) + health(11) + tag(4) + ready(9)
	packet, err := conn.CreatePacket(
		[]protocol.UpdateElement{&protocol.Health{ActorID: 1, Health: 1}},
		[]protocol.UpdateElement{&protocol.Ready{Ready: true, ClientID: 1}},
	)
	is.NoErr(err)
	is.Equal(packet.Len(), bitstream.BytesFor(34+5+11+4+9))
}

func TestReliableCatchUp(t *testing.T) {
	is := is.New(t)

	sender := rudp.NewConnection(1)
	receiver := rudp.NewConnection(0)

	// only the last of five packets makes it
	var last rudp.Packet
	for i := 0; i < 5; i++ {
		packet, err := sender.CreatePacket(nil, []protocol.UpdateElement{health(i)})
		is.NoErr(err)
		last = packet
	}

	up, err := receiver.ProcessPacket(last, nil)
	is.NoErr(err)
	is.Equal(up.Header.ReliableCount, 5)
	is.Equal(len(up.ReliableElements), 5)
	for i, e := range up.ReliableElements {
		is.Equal(e, health(i))
	}
	is.Equal(receiver.CurrentAck(), 5)
}

func TestDuplicateSuppression(t *testing.T) {
	is := is.New(t)

	sender := rudp.NewConnection(1)
	receiver := rudp.NewConnection(0)

	packet, err := sender.CreatePacket(nil, []protocol.UpdateElement{health(1), health(2)})
	is.NoErr(err)

	up, err := receiver.ProcessPacket(packet, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), 2)
	is.Equal(receiver.CurrentAck(), 2)

	up, err = receiver.ProcessPacket(packet, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), 0)
	is.Equal(receiver.CurrentAck(), 2)
}

func TestGapIsHeld(t *testing.T) {
	is := is.New(t)

	sender := rudp.NewConnection(1)
	receiver := rudp.NewConnection(0)

	_, err := sender.CreatePacket(nil, []protocol.UpdateElement{health(0)}) // lost
	is.NoErr(err)
	second, err := sender.CreatePacket(nil, []protocol.UpdateElement{health(1)})
	is.NoErr(err)

	// the run starts at 1 but the receiver still waits for 0
	up, err := receiver.ProcessPacket(second, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), 0)
	is.Equal(receiver.CurrentAck(), 0)
}

func TestBackpressure(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(1)

	failedAt := -1
	for i := 0; i < 4000; i++ {
		_, err := conn.CreatePacket(nil, []protocol.UpdateElement{health(i)})
		if err != nil {
			is.True(errors.Is(err, rudp.ErrBufferFull))
			failedAt = i
			break
		}
	}

	is.Equal(failedAt, rudp.MaxInFlight)
	is.Equal(conn.InFlight(), rudp.MaxInFlight)
	is.Equal(conn.MessageIndex(), rudp.MaxInFlight)

	// a failed batch enqueues nothing
	_, err := conn.CreatePacket(nil, []protocol.UpdateElement{health(0)})
	is.True(errors.Is(err, rudp.ErrBufferFull))
	is.Equal(conn.MessageIndex(), rudp.MaxInFlight)

	var berr *rudp.BufferFullError
	is.True(errors.As(err, &berr))
	is.Equal(berr.InFlight, rudp.MaxInFlight)
	is.Equal(berr.Requested, 1)
}

func TestBackpressureIsAtomic(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(1)

	batch := make([]protocol.UpdateElement, rudp.MaxInFlight+1)
	for i := range batch {
		batch[i] = health(i)
	}

	_, err := conn.CreatePacket(nil, batch)
	is.True(errors.Is(err, rudp.ErrBufferFull))
	is.Equal(conn.MessageIndex(), 0)

	_, err = conn.CreatePacket(nil, batch[:rudp.MaxInFlight])
	is.NoErr(err)
	is.Equal(conn.InFlight(), rudp.MaxInFlight)
}

func TestInvalidElementIsNotEnqueued(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(1)

	_, err := conn.CreatePacket(nil, []protocol.UpdateElement{
		health(0),
		&protocol.Health{ActorID: 1, Health: protocol.HealthMax + 1},
	})
	is.True(errors.Is(err, protocol.ErrInvalidPacketData))
	is.Equal(conn.MessageIndex(), 0)
}

func TestAckRetiresElements(t *testing.T) {
	is := is.New(t)

	a := rudp.NewConnection(1)
	b := rudp.NewConnection(0)

	packet, err := a.CreatePacket(nil, []protocol.UpdateElement{health(1), health(2), health(3)})
	is.NoErr(err)
	is.Equal(a.InFlight(), 3)

	_, err = b.ProcessPacket(packet, nil)
	is.NoErr(err)

	reply, err := b.CreatePacket(nil, nil)
	is.NoErr(err)

	_, err = a.ProcessPacket(reply, nil)
	is.NoErr(err)
	is.Equal(a.LastKnownWanted(), 3)
	is.Equal(a.InFlight(), 0)

	// nothing left to resend
	for i := 0; i < rudp.ResendDelay+1; i++ {
		packet, err = a.CreatePacket(nil, nil)
		is.NoErr(err)

		up, err := b.ProcessPacket(packet, nil)
		is.NoErr(err)
		is.Equal(up.Header.ReliableCount, 0)
	}

	// an old reply does not move the floor back
	_, err = a.ProcessPacket(reply, nil)
	is.NoErr(err)
	is.Equal(a.LastKnownWanted(), 3)
}

func TestResendAfterDelay(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(1)
	peer := rudp.NewConnection(0)

	first, err := conn.CreatePacket(nil, []protocol.UpdateElement{health(7)})
	is.NoErr(err)
	up, err := peer.ProcessPacket(first, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), 1)

	counts := []int{}
	for i := 0; i < rudp.ResendDelay+1; i++ {
		packet, err := conn.CreatePacket(nil, nil)
		is.NoErr(err)
		up, err := peer.ProcessPacket(packet, nil)
		is.NoErr(err)
		counts = append(counts, up.Header.ReliableCount)
	}

	// unacked, so it goes out again once its timer ran down; the peer has
	// already seen it
	is.Equal(counts, []int{0, 0, 0, 1})
	is.Equal(peer.CurrentAck(), 1)
}

func TestReliableBudget(t *testing.T) {
	is := is.New(t)

	sender := rudp.NewConnection(1)
	receiver := rudp.NewConnection(0)

	const total = 1000
	batch := make([]protocol.UpdateElement, total)
	for i := range batch {
		batch[i] = health(i)
	}

	// every health takes 4 + 11 bits
	perPacket := rudp.MaxReliableBits / (protocol.IndicatorBits + batch[0].Bits())

	first, err := sender.CreatePacket(nil, batch)
	is.NoErr(err)
	up, err := receiver.ProcessPacket(first, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), perPacket)

	second, err := sender.CreatePacket(nil, nil)
	is.NoErr(err)
	up, err = receiver.ProcessPacket(second, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), total-perPacket)
	is.Equal(receiver.CurrentAck(), total)
}

func TestOversizedElementIsSent(t *testing.T) {
	is := is.New(t)

	players := make([]protocol.PlayerInfo, protocol.PlayersMax)
	for i := range players {
		players[i] = protocol.PlayerInfo{
			ID:   i + 1,
			Name: strings.Repeat("n", protocol.NameBytesMax),
			Team: i % 2,
		}
	}
	status := &protocol.LobbyStatus{Players: players}
	is.True(status.Bits() > rudp.MaxReliableBits)

	sender := rudp.NewConnection(0)
	receiver := rudp.NewConnection(1)

	packet, err := sender.CreatePacket(nil, []protocol.UpdateElement{status, health(1)})
	is.NoErr(err)

	up, err := receiver.ProcessPacket(packet, nil)
	is.NoErr(err)
	is.Equal(len(up.ReliableElements), 1)
	is.Equal(up.ReliableElements[0], status)
}

func TestPacketTypeMismatch(t *testing.T) {
	is := is.New(t)

	conn := rudp.NewConnection(1)

	_, err := conn.ProcessPacket(rudp.CreateRequestPacket(), nil)
	is.True(errors.Is(err, rudp.ErrUnexpectedPacketType))

	var perr *rudp.PacketTypeError
	is.True(errors.As(err, &perr))
	is.Equal(perr.Got, protocol.PacketTypeRequest)
	is.Equal(perr.Expected, protocol.PacketTypeGameplay)

	// the offending datagram travels with the error
	var derr *rudp.DecodeError
	is.True(errors.As(err, &derr))
	is.Equal(derr.Section, rudp.SectionHeader)
	is.Equal(derr.Data, rudp.CreateRequestPacket().Data)

	gameplay, err := conn.CreatePacket(nil, nil)
	is.NoErr(err)
	_, err = conn.ProcessHeartbeat(gameplay)
	is.True(errors.Is(err, rudp.ErrUnexpectedPacketType))
	is.True(errors.As(err, &derr))
	is.Equal(derr.Data, gameplay.Data)

	_, err = rudp.GetPlayerID(rudp.CreateRequestPacket())
	is.True(errors.Is(err, rudp.ErrUnexpectedPacketType))
	is.True(errors.As(err, &derr))
	is.Equal(derr.Data, rudp.CreateRequestPacket().Data)
}

func TestRequestConfirmation(t *testing.T) {
	is := is.New(t)

	request := rudp.CreateRequestPacket()
	is.Equal(request.Len(), bitstream.BytesFor(34))

	packetType, err := rudp.GetPacketType(request)
	is.NoErr(err)
	is.Equal(packetType, protocol.PacketTypeRequest)

	_, err = rudp.GetPlayerID(request)
	is.True(errors.Is(err, rudp.ErrUnexpectedPacketType))

	confirmation, err := rudp.CreateConfirmationPacket(7)
	is.NoErr(err)

	packetType, err = rudp.GetPacketType(confirmation)
	is.NoErr(err)
	is.Equal(packetType, protocol.PacketTypeConfirmation)

	playerID, err := rudp.GetPlayerID(confirmation)
	is.NoErr(err)
	is.Equal(playerID, 7)

	_, err = rudp.CreateConfirmationPacket(protocol.ClientIDMax + 1)
	is.True(errors.Is(err, protocol.ErrInvalidPacketData))
}

func TestHeartbeat(t *testing.T) {
	is := is.New(t)

	a := rudp.NewConnection(0)
	b := rudp.NewConnection(3)

	packet, err := a.CreatePacket(nil, []protocol.UpdateElement{health(1), health(2)})
	is.NoErr(err)
	_, err = b.ProcessPacket(packet, nil)
	is.NoErr(err)

	heartbeat := b.CreateHeartbeatPacket()

	packetType, err := rudp.GetPacketType(heartbeat)
	is.NoErr(err)
	is.Equal(packetType, protocol.PacketTypeHeartbeat)

	clientID, err := a.ProcessHeartbeat(heartbeat)
	is.NoErr(err)
	is.Equal(clientID, 3)
	is.Equal(a.InFlight(), 0)
}

func TestUnknownReliableTag(t *testing.T) {
	is := is.New(t)

	header := &protocol.PacketHeader{
		Type:          protocol.PacketTypeGameplay,
		SeqNumber:     0,
		ReliableCount: 1,
	}
	bs := bitstream.NewSize(header.Bits() + protocol.ClientIDBits + protocol.IndicatorBits)
	is.NoErr(protocol.WriteTo(bs, header))
	is.NoErr(protocol.WriteTo(bs, &protocol.ClientID{ClientID: 2}))
	is.NoErr(protocol.WriteTo(bs, &protocol.ElementIndicator{Element: protocol.IDInvalid}))

	conn := rudp.NewConnection(0)
	_, err := conn.ProcessPacket(rudp.Packet{Data: bs.Bytes()}, nil)
	is.True(errors.Is(err, protocol.ErrUnknownElement))
	is.Equal(rudp.ErrorKind(err), "unknown_element")

	var derr *rudp.DecodeError
	is.True(errors.As(err, &derr))
	is.Equal(derr.Section, rudp.SectionReliable)
	is.Equal(derr.Data, bs.Bytes())

	is.Equal(conn.CurrentAck(), 0)
}

func TestTruncatedUnreliable(t *testing.T) {
	is := is.New(t)

	sender := rudp.NewConnection(1)
	receiver := rudp.NewConnection(0)

	packet, err := sender.CreatePacket(nil, nil)
	is.NoErr(err)

	expected := []protocol.ElementID{protocol.IDPosition}
	_, err = receiver.ProcessPacket(packet, expected)
	is.True(errors.Is(err, bitstream.ErrOutOfBounds))

	var derr *rudp.DecodeError
	is.True(errors.As(err, &derr))
	is.Equal(derr.Section, rudp.SectionUnreliable)
	is.Equal(derr.Expected, expected)
}

type healthBridge struct {
	protocol.NopBridge
	health map[int]int
}

func (b *healthBridge) UpdateActorHealth(actorID, health int) {
	b.health[actorID] = health
}

func TestUpdateStateOrder(t *testing.T) {
	is := is.New(t)

	sender := rudp.NewConnection(1)
	receiver := rudp.NewConnection(0)

	packet, err := sender.CreatePacket(
		[]protocol.UpdateElement{&protocol.Health{ActorID: 4, Health: 1}},
		[]protocol.UpdateElement{&protocol.Health{ActorID: 4, Health: 2}},
	)
	is.NoErr(err)

	up, err := receiver.ProcessPacket(packet, []protocol.ElementID{protocol.IDHealth})
	is.NoErr(err)

	bridge := &healthBridge{health: map[int]int{}}
	up.UpdateState(bridge)
	is.Equal(bridge.health[4], 2) // reliable applied last
}

func TestErrorKind(t *testing.T) {
	is := is.New(t)

	is.Equal(rudp.ErrorKind(nil), "none")
	is.Equal(rudp.ErrorKind(&rudp.BufferFullError{}), "buffer_full")
	is.Equal(rudp.ErrorKind(&rudp.PacketTypeError{}), "packet_type")
	is.Equal(rudp.ErrorKind(&protocol.ValidationError{}), "invalid_data")
	is.Equal(rudp.ErrorKind(bitstream.ErrOutOfBounds), "out_of_bounds")
	is.Equal(rudp.ErrorKind(errors.New("boom")), "other")
}
