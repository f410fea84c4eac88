package lobbyserver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/blukai/rudpnet/internal/debug"
	"github.com/blukai/rudpnet/internal/metrics"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/blukai/rudpnet/internal/rudp"
	"github.com/blukai/rudpnet/internal/transport"
	"github.com/cespare/xxhash/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

// ServerClientID is the client id the server writes into its own packets.
const ServerClientID = 0

// ClientUnreliable is the layout of the unreliable section of every gameplay
// packet a client sends.
var ClientUnreliable = []protocol.ElementID{protocol.IDPosition}

type addrKey uint64

func makeAddrKey(addr net.Addr) addrKey {
	return addrKey(xxhash.Sum64String(addr.String()))
}

type peer struct {
	id       int
	addr     net.Addr
	conn     *rudp.Connection
	lastSeen time.Time

	team  int
	ready bool
	x, z  float32

	// reliable elements that did not fit into the peer's buffer yet
	pending []protocol.UpdateElement
}

func (p *peer) name() string {
	return fmt.Sprintf("player-%d", p.id)
}

type Option func(ls *LobbyServer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(ls *LobbyServer) { ls.metrics = m }
}

// WithTickInterval sets how often every peer gets a packet.
func WithTickInterval(d time.Duration) Option {
	return func(ls *LobbyServer) { ls.tickInterval = d }
}

// WithEvictAfter sets how long a peer may stay silent.
func WithEvictAfter(d time.Duration) Option {
	return func(ls *LobbyServer) { ls.evictAfter = d }
}

// WithMinPlayers sets how many ready players it takes to start a game.
func WithMinPlayers(n int) Option {
	return func(ls *LobbyServer) { ls.minPlayers = n }
}

// WithPacketConn wraps the listening socket, e.g. with
// transport.NewLossyPacketConn.
func WithPacketConn(wrap func(net.PacketConn) net.PacketConn) Option {
	return func(ls *LobbyServer) { ls.conn = wrap(ls.conn) }
}

type LobbyServer struct {
	conn net.PacketConn
	buf  []byte

	logger  *log.Logger
	metrics *metrics.Metrics

	tickInterval time.Duration
	evictAfter   time.Duration
	minPlayers   int

	mu      sync.Mutex
	peers   map[addrKey]*peer
	ids     [protocol.ClientIDMax + 1]bool
	started bool
}

func NewLobbyServer(network, address string, logger *log.Logger, opts ...Option) (*LobbyServer, error) {
	conn, err := transport.Listen(network, address)
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

	ls := &LobbyServer{
		conn: conn,
		buf:  make([]byte, transport.MaxDatagramSize),

		logger: logger,

		tickInterval: 50 * time.Millisecond,
		evictAfter:   10 * time.Second,
		minPlayers:   2,

		peers: make(map[addrKey]*peer),
	}
	ls.ids[ServerClientID] = true

	for _, opt := range opts {
		opt(ls)
	}

	return ls, nil
}

// Addr can be useful to retreive server's address when LobbyServer was
// constructed with ":0".
func (ls *LobbyServer) Addr() *net.UDPAddr {
	return ls.conn.LocalAddr().(*net.UDPAddr)
}

// Clients returns the number of clients holding an id.
func (ls *LobbyServer) Clients() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.peers)
}

func (ls *LobbyServer) Started() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.started
}

func (ls *LobbyServer) runRecv(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := ls.conn.SetReadDeadline(time.Now().Add(time.Second))
			debug.Assert(err == nil)

			n, addr, err := ls.conn.ReadFrom(ls.buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}

				ls.logger.Error().
					Msgf("could not read from udp: %v", err)
				continue
			}

			data := make([]byte, n)
			copy(data, ls.buf[:n])

			ls.mu.Lock()
			ls.handlePacket(rudp.Packet{Data: data}, addr)
			ls.mu.Unlock()
		}
	}
}

func (ls *LobbyServer) runTick(ctx context.Context) {
	ticker := time.NewTicker(ls.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ls.mu.Lock()
			err := ls.flush()
			ls.mu.Unlock()

			if err != nil {
				ls.logger.Error().
					Msgf("could not flush: %v", err)
			}
		}
	}
}

// TODO(blukai): a client that lost its confirmation after being evicted keeps
// sending gameplay packets that are silently dropped; tell it to re-request.
func (ls *LobbyServer) runClientEvictor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			ls.mu.Lock()
			ls.evict(time.Now())
			ls.mu.Unlock()
		}
	}
}

func (ls *LobbyServer) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ls.runRecv(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ls.runTick(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ls.runClientEvictor(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ls.conn.Close()
}

func (ls *LobbyServer) handlePacket(packet rudp.Packet, addr net.Addr) {
	packetType, err := rudp.GetPacketType(packet)
	if err != nil {
		ls.decodeFailed(packet, addr, err)
		return
	}
	ls.metrics.PacketReceived(packetType, packet.Len())

	ls.logger.Debug().
		Str("type", packetType.String()).
		Any("addr", addr).
		Msg("recv")

	switch packetType {
	case protocol.PacketTypeRequest:
		err = ls.handleRequest(addr)
	case protocol.PacketTypeGameplay:
		err = ls.handleGameplay(packet, addr)
	case protocol.PacketTypeHeartbeat:
		err = ls.handleHeartbeat(packet, addr)
	default:
		ls.logger.Warn().
			Msgf("unexpected %s packet from %s", packetType, addr)
	}

	if err != nil {
		ls.decodeFailed(packet, addr, err)
	}
}

func (ls *LobbyServer) decodeFailed(packet rudp.Packet, addr net.Addr, err error) {
	ls.metrics.DecodeError(rudp.ErrorKind(err))

	ls.logger.Error().
		Str("kind", rudp.ErrorKind(err)).
		Msgf("could not handle packet from %s: %v", addr, err)

	if ls.logger.Level <= log.DebugLevel {
		ls.logger.Debug().
			Str("dump", spew.Sdump(packet.Data)).
			Msg("undecodable packet")
	}
}

func (ls *LobbyServer) allocateID() (int, bool) {
	for id := 1; id <= protocol.ClientIDMax; id++ {
		if !ls.ids[id] {
			ls.ids[id] = true
			return id, true
		}
	}
	return 0, false
}

func (ls *LobbyServer) handleRequest(addr net.Addr) error {
	key := makeAddrKey(addr)

	p, ok := ls.peers[key]
	if !ok {
		if ls.started {
			ls.logger.Warn().
				Msgf("rejecting %s: game already started", addr)
			return nil
		}

		id, ok := ls.allocateID()
		if !ok {
			ls.logger.Warn().
				Msgf("rejecting %s: lobby is full", addr)
			return nil
		}

		p = &peer{
			id:       id,
			addr:     addr,
			conn:     rudp.NewConnection(ServerClientID),
			lastSeen: time.Now(),
			team:     (id - 1) % 2,
			x:        protocol.CoordMax / 2,
			z:        protocol.CoordMax / 2,
		}
		ls.peers[key] = p
		ls.metrics.SetClients(len(ls.peers))

		ls.logger.Info().
			Int("id", id).
			Any("addr", addr).
			Msg("client joined")

		ls.broadcastLobbyStatus()
	}

	// a repeated request means the confirmation got lost
	p.lastSeen = time.Now()
	confirmation, err := rudp.CreateConfirmationPacket(p.id)
	debug.Assert(err == nil)

	return ls.send(p, protocol.PacketTypeConfirmation, confirmation, 0)
}

func (ls *LobbyServer) lookup(packet rudp.Packet, addr net.Addr) (*peer, error) {
	p, ok := ls.peers[makeAddrKey(addr)]
	if !ok {
		return nil, fmt.Errorf("no client at %s", addr)
	}

	clientID, err := rudp.GetPlayerID(packet)
	if err != nil {
		return nil, err
	}
	if clientID != p.id {
		return nil, fmt.Errorf("client at %s claims id %d, has %d", addr, clientID, p.id)
	}

	return p, nil
}

func (ls *LobbyServer) handleGameplay(packet rudp.Packet, addr net.Addr) error {
	p, err := ls.lookup(packet, addr)
	if err != nil {
		return err
	}

	up, err := p.conn.ProcessPacket(packet, ClientUnreliable)
	if err != nil {
		return err
	}
	p.lastSeen = time.Now()

	up.UpdateState(&peerBridge{ls: ls, peer: p})

	ls.maybeStartGame()

	return nil
}

func (ls *LobbyServer) handleHeartbeat(packet rudp.Packet, addr net.Addr) error {
	p, err := ls.lookup(packet, addr)
	if err != nil {
		return err
	}

	if _, err := p.conn.ProcessHeartbeat(packet); err != nil {
		return err
	}
	p.lastSeen = time.Now()

	return nil
}

func (ls *LobbyServer) evict(now time.Time) {
	evicted := false
	for key, p := range ls.peers {
		if now.Sub(p.lastSeen) <= ls.evictAfter {
			continue
		}

		delete(ls.peers, key)
		ls.ids[p.id] = false
		evicted = true
		ls.metrics.Evicted()

		ls.logger.Debug().
			Int("id", p.id).
			Str("addr", p.addr.String()).
			Msg("evicted client")
	}
	if !evicted {
		return
	}

	ls.metrics.SetClients(len(ls.peers))
	if len(ls.peers) == 0 {
		ls.started = false
		return
	}
	if !ls.started {
		ls.broadcastLobbyStatus()
		ls.maybeStartGame()
	}
}

// valid drops the elements that would fail CreatePacket, so that pending
// queues only ever hold sendable elements.
func (ls *LobbyServer) valid(elements []protocol.UpdateElement) []protocol.UpdateElement {
	valid := make([]protocol.UpdateElement, 0, len(elements))
	for _, e := range elements {
		if err := e.Validate(); err != nil {
			ls.logger.Error().
				Str("element", e.ID().String()).
				Msgf("dropping invalid element: %v", err)
			continue
		}
		valid = append(valid, e)
	}
	return valid
}

func (ls *LobbyServer) broadcast(elements ...protocol.UpdateElement) {
	ls.broadcastExcept(nil, elements...)
}

func (ls *LobbyServer) broadcastExcept(except *peer, elements ...protocol.UpdateElement) {
	elements = ls.valid(elements)
	if len(elements) == 0 {
		return
	}

	for _, p := range ls.peers {
		if p == except {
			continue
		}
		p.pending = append(p.pending, elements...)
	}
}

func (ls *LobbyServer) broadcastLobbyStatus() {
	players := make([]protocol.PlayerInfo, 0, len(ls.peers))
	for _, p := range ls.peers {
		players = append(players, protocol.PlayerInfo{
			ID:    p.id,
			Name:  p.name(),
			Team:  p.team,
			Ready: p.ready,
		})
	}
	slices.SortFunc(players, func(a, b protocol.PlayerInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	ls.broadcast(&protocol.LobbyStatus{Players: players})
}

func (ls *LobbyServer) maybeStartGame() {
	if ls.started || len(ls.peers) < ls.minPlayers {
		return
	}
	for _, p := range ls.peers {
		if !p.ready {
			return
		}
	}

	ls.started = true

	elements := []protocol.UpdateElement{&protocol.GameStart{PlayerNum: len(ls.peers)}}
	for _, p := range ls.peers {
		elements = append(elements, &protocol.Spawn{
			ActorType: actorTypeFor(p),
			ActorID:   p.id,
			Team:      p.team,
			X:         p.x,
			Z:         p.z,
		})
	}
	ls.broadcast(elements...)

	ls.logger.Info().
		Int("players", len(ls.peers)).
		Msg("game started")
}

func actorTypeFor(p *peer) protocol.ActorType {
	base := protocol.ActorHumanPlayerA
	if p.team%2 == 1 {
		base = protocol.ActorOrcPlayerA
	}
	return base + protocol.ActorType((p.id-1)%5)
}

// flush sends one packet to every peer: pending reliable elements if there is
// room for them, a bare gameplay packet to keep resends going otherwise, and a
// heartbeat when there is nothing to send at all.
func (ls *LobbyServer) flush() error {
	var errs error

	for _, p := range ls.peers {
		var packet rudp.Packet
		var err error
		packetType := protocol.PacketTypeGameplay
		reliable := 0

		switch {
		case len(p.pending) == 0 && p.conn.InFlight() == 0:
			packet = p.conn.CreateHeartbeatPacket()
			packetType = protocol.PacketTypeHeartbeat
		default:
			packet, err = p.conn.CreatePacket(nil, p.pending)
			if errors.Is(err, rudp.ErrBufferFull) {
				ls.metrics.Backpressure()
				packet, err = p.conn.CreatePacket(nil, nil)
			} else if err == nil {
				p.pending = nil
			}
		}
		if err != nil {
			// pending is validated on the way in, so this is an encoding
			// failure that would repeat on every tick
			p.pending = nil
			errs = multierror.Append(errs, fmt.Errorf("could not create packet for client %d: %w", p.id, err))
			continue
		}

		if packetType == protocol.PacketTypeGameplay {
			header, err := rudp.GetHeader(packet)
			debug.Assert(err == nil)
			reliable = header.ReliableCount
		}

		if err := ls.send(p, packetType, packet, reliable); err != nil {
			ls.logger.Error().
				Msgf("could not send to client %d: %v", p.id, err)

			errs = multierror.Append(errs, err)
		}
	}

	return errs
}

func (ls *LobbyServer) send(p *peer, packetType protocol.PacketType, packet rudp.Packet, reliable int) error {
	ls.logger.Debug().
		Str("type", packetType.String()).
		Int("id", p.id).
		Int("bytes", packet.Len()).
		Msg("send")

	if _, err := ls.conn.WriteTo(packet.Data, p.addr); err != nil {
		return err
	}
	ls.metrics.PacketSent(packetType, packet.Len(), reliable)
	return nil
}

// peerBridge applies what a client sent to the lobby.
type peerBridge struct {
	protocol.NopBridge

	ls   *LobbyServer
	peer *peer
}

func (b *peerBridge) UpdateActorPosition(actorID int, x, z float32) {
	if actorID != b.peer.id {
		return
	}
	b.peer.x, b.peer.z = x, z
}

func (b *peerBridge) UpdateReadyStatus(ready bool, clientID, team int) {
	if clientID != b.peer.id {
		b.ls.logger.Warn().
			Msgf("client %d sent ready status for %d", b.peer.id, clientID)
		return
	}
	if b.ls.started {
		return
	}

	b.peer.ready = ready
	b.peer.team = team
	b.ls.broadcastLobbyStatus()
}

func (b *peerBridge) UseTargetedAbility(actorID int, ability protocol.AbilityType, targetID int) {
	info, ok := protocol.LookupAbility(ability)
	if !ok || !info.IsTargeted || actorID != b.peer.id {
		b.ls.logger.Warn().
			Msgf("client %d sent invalid targeted ability %d", b.peer.id, ability)
		return
	}
	b.ls.broadcastExcept(b.peer, &protocol.TargetedAbility{
		ActorID:  actorID,
		Ability:  ability,
		TargetID: targetID,
	})
}

func (b *peerBridge) UseAreaAbility(actorID int, ability protocol.AbilityType, x, z float32) {
	info, ok := protocol.LookupAbility(ability)
	if !ok || !info.IsArea || actorID != b.peer.id {
		b.ls.logger.Warn().
			Msgf("client %d sent invalid area ability %d", b.peer.id, ability)
		return
	}
	b.ls.broadcastExcept(b.peer, &protocol.AreaAbility{
		ActorID: actorID,
		Ability: ability,
		X:       x,
		Z:       z,
	})
}
