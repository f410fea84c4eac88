package lobbyclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/blukai/rudpnet/internal/debug"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/blukai/rudpnet/internal/rudp"
	"github.com/blukai/rudpnet/internal/transport"
	"github.com/phuslu/log"
)

type Option func(lc *LobbyClient)

// WithTickInterval sets how often the client sends its position.
func WithTickInterval(d time.Duration) Option {
	return func(lc *LobbyClient) { lc.tickInterval = d }
}

// WithPacketConn wraps the client socket, e.g. with
// transport.NewLossyPacketConn.
func WithPacketConn(wrap func(net.PacketConn) net.PacketConn) Option {
	return func(lc *LobbyClient) { lc.conn = wrap(lc.conn) }
}

type LobbyClient struct {
	conn       net.PacketConn
	serverAddr *net.UDPAddr
	readBuf    []byte

	logger *log.Logger

	tickInterval  time.Duration
	recvTimeout   time.Duration
	requestPeriod time.Duration

	confirmCh chan int

	mu sync.Mutex

	// nil until the server confirmed the join
	rc        *rudp.Connection
	x, z      float32
	moved     bool
	pending   []protocol.UpdateElement
	players   []protocol.PlayerInfo
	started   bool
	playerNum int
	spawns    map[int]protocol.Spawn
	casts     []protocol.UpdateElement
}

func NewLobbyClient(network, address string, logger *log.Logger, opts ...Option) (*LobbyClient, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not resolve udp addr: %w", err)
	}

	conn, err := transport.Listen(network, ":0")
	if err != nil {
		return nil, fmt.Errorf("could not listen: %w", err)
	}

	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	lc := &LobbyClient{
		conn:       conn,
		serverAddr: addr,
		readBuf:    make([]byte, transport.MaxDatagramSize),

		logger: logger,

		tickInterval:  50 * time.Millisecond,
		recvTimeout:   time.Second,
		requestPeriod: 250 * time.Millisecond,

		confirmCh: make(chan int, 1),

		x: protocol.CoordMax / 2,
		z: protocol.CoordMax / 2,

		spawns: make(map[int]protocol.Spawn),
	}

	for _, opt := range opts {
		opt(lc)
	}

	return lc, nil
}

func (lc *LobbyClient) fromServer(addr net.Addr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return addr.String() == lc.serverAddr.String()
	}
	return udpAddr.Port == lc.serverAddr.Port && udpAddr.IP.Equal(lc.serverAddr.IP)
}

func (lc *LobbyClient) runRecv(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := lc.conn.SetReadDeadline(time.Now().Add(lc.recvTimeout))
			debug.Assert(err == nil)

			n, addr, err := lc.conn.ReadFrom(lc.readBuf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}

				lc.logger.Error().
					Msgf("could not read: %v", err)
				continue
			}

			if !lc.fromServer(addr) {
				lc.logger.Warn().
					Any("addr", addr).
					Msg("ignoring packet from unknown sender")
				continue
			}

			data := make([]byte, n)
			copy(data, lc.readBuf[:n])

			if err := lc.handlePacket(rudp.Packet{Data: data}); err != nil {
				lc.logger.Error().
					Str("kind", rudp.ErrorKind(err)).
					Msgf("could not handle packet: %v", err)
			}
		}
	}
}

// runTick sends the position and queued reliable elements every tick, or a
// heartbeat to keep the connection alive and acks flowing when there is
// nothing new.
func (lc *LobbyClient) runTick(ctx context.Context) {
	ticker := time.NewTicker(lc.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lc.tick(); err != nil {
				lc.logger.Error().
					Msgf("could not send: %v", err)
			}
		}
	}
}

func (lc *LobbyClient) tick() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.rc == nil {
		return nil
	}

	var packet rudp.Packet
	if !lc.moved && len(lc.pending) == 0 && lc.rc.InFlight() == 0 {
		packet = lc.rc.CreateHeartbeatPacket()
	} else {
		unreliable := []protocol.UpdateElement{
			&protocol.Position{ActorID: lc.rc.ClientID(), X: lc.x, Z: lc.z},
		}

		var err error
		packet, err = lc.rc.CreatePacket(unreliable, lc.pending)
		if errors.Is(err, rudp.ErrBufferFull) {
			packet, err = lc.rc.CreatePacket(unreliable, nil)
		} else if err == nil {
			lc.pending = nil
		}
		if err != nil {
			return fmt.Errorf("could not create packet: %w", err)
		}
		lc.moved = false
	}

	return lc.write(packet)
}

func (lc *LobbyClient) write(packet rudp.Packet) error {
	_, err := lc.conn.WriteTo(packet.Data, lc.serverAddr)
	return err
}

func (lc *LobbyClient) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		lc.runRecv(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		lc.runTick(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return lc.conn.Close()
}

func (lc *LobbyClient) handlePacket(packet rudp.Packet) error {
	packetType, err := rudp.GetPacketType(packet)
	if err != nil {
		return err
	}

	lc.logger.Debug().
		Str("type", packetType.String()).
		Int("bytes", packet.Len()).
		Msg("recv")

	switch packetType {
	case protocol.PacketTypeConfirmation:
		clientID, err := rudp.GetPlayerID(packet)
		if err != nil {
			return err
		}
		lc.confirm(clientID)
		return nil
	case protocol.PacketTypeGameplay, protocol.PacketTypeHeartbeat:
	default:
		return fmt.Errorf("unexpected %s packet", packetType)
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	// NOTE(blukai): packets that overtook the confirmation are dropped, the
	// server resends what was reliable in them.
	if lc.rc == nil {
		return nil
	}

	if packetType == protocol.PacketTypeHeartbeat {
		_, err := lc.rc.ProcessHeartbeat(packet)
		return err
	}

	up, err := lc.rc.ProcessPacket(packet, nil)
	if err != nil {
		return err
	}
	up.UpdateState(&clientBridge{lc: lc})

	return nil
}

func (lc *LobbyClient) confirm(clientID int) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	// duplicates answer requests that were resent
	if lc.rc != nil {
		return
	}
	lc.rc = rudp.NewConnection(clientID)

	select {
	case lc.confirmCh <- clientID:
	default:
	}
}

// Join requests a client id, resending the request until it is confirmed.
// Run must be running.
func (lc *LobbyClient) Join(ctx context.Context) (int, error) {
	request := rudp.CreateRequestPacket()

	for {
		if err := lc.write(request); err != nil {
			return 0, fmt.Errorf("could not send request: %w", err)
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("could not join: %w", ctx.Err())
		case clientID := <-lc.confirmCh:
			lc.logger.Info().
				Int("id", clientID).
				Msg("joined")
			return clientID, nil
		case <-time.After(lc.requestPeriod):
		}
	}
}

// ID returns the client id, or 0 before Join succeeded.
func (lc *LobbyClient) ID() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.rc == nil {
		return 0
	}
	return lc.rc.ClientID()
}

var ErrNotJoined = errors.New("not joined")

func (lc *LobbyClient) enqueue(e protocol.UpdateElement) error {
	if err := e.Validate(); err != nil {
		return err
	}
	lc.pending = append(lc.pending, e)
	return nil
}

// SetReady is sent reliably with the next tick.
func (lc *LobbyClient) SetReady(ready bool, team int) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.rc == nil {
		return ErrNotJoined
	}
	return lc.enqueue(&protocol.Ready{Ready: ready, ClientID: lc.rc.ClientID(), Team: team})
}

// MoveTo is sent unreliably with every following tick.
func (lc *LobbyClient) MoveTo(x, z float32) error {
	position := &protocol.Position{X: x, Z: z}
	if err := position.Validate(); err != nil {
		return err
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.x, lc.z = x, z
	lc.moved = true
	return nil
}

// CastTargeted asks the server to relay a targeted ability to everyone else.
func (lc *LobbyClient) CastTargeted(ability protocol.AbilityType, targetID int) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.rc == nil {
		return ErrNotJoined
	}
	return lc.enqueue(&protocol.TargetedAbility{
		ActorID:  lc.rc.ClientID(),
		Ability:  ability,
		TargetID: targetID,
	})
}

// Players returns the last lobby status received.
func (lc *LobbyClient) Players() []protocol.PlayerInfo {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	players := make([]protocol.PlayerInfo, len(lc.players))
	copy(players, lc.players)
	return players
}

// GameStarted reports whether the server started the game and with how many
// players.
func (lc *LobbyClient) GameStarted() (bool, int) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.started, lc.playerNum
}

func (lc *LobbyClient) Spawns() []protocol.Spawn {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	spawns := make([]protocol.Spawn, 0, len(lc.spawns))
	for _, spawn := range lc.spawns {
		spawns = append(spawns, spawn)
	}
	return spawns
}

// Casts returns the abilities other players used, oldest first.
func (lc *LobbyClient) Casts() []protocol.UpdateElement {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	casts := make([]protocol.UpdateElement, len(lc.casts))
	copy(casts, lc.casts)
	return casts
}

// clientBridge is called with lc.mu held.
type clientBridge struct {
	protocol.NopBridge

	lc *LobbyClient
}

func (b *clientBridge) SetLobbyStatus(players []protocol.PlayerInfo) {
	b.lc.players = players
}

func (b *clientBridge) StartGame(playerNum int) {
	b.lc.started = true
	b.lc.playerNum = playerNum

	b.lc.logger.Info().
		Int("players", playerNum).
		Msg("game started")
}

func (b *clientBridge) SpawnActor(actorType protocol.ActorType, actorID, team int, x, z float32) {
	b.lc.spawns[actorID] = protocol.Spawn{
		ActorType: actorType,
		ActorID:   actorID,
		Team:      team,
		X:         x,
		Z:         z,
	}
}

func (b *clientBridge) UseTargetedAbility(actorID int, ability protocol.AbilityType, targetID int) {
	b.lc.casts = append(b.lc.casts, &protocol.TargetedAbility{
		ActorID:  actorID,
		Ability:  ability,
		TargetID: targetID,
	})
}

func (b *clientBridge) UseAreaAbility(actorID int, ability protocol.AbilityType, x, z float32) {
	b.lc.casts = append(b.lc.casts, &protocol.AreaAbility{
		ActorID: actorID,
		Ability: ability,
		X:       x,
		Z:       z,
	})
}
