package lobbytest_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/blukai/rudpnet/internal/lobbyclient"
	"github.com/blukai/rudpnet/internal/lobbyserver"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/blukai/rudpnet/internal/transport"
	"github.com/matryer/is"
	"github.com/phuslu/log"
)

func testLogger() *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Level = log.InfoLevel
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func lossy(rate float64, seed uint64) func(net.PacketConn) net.PacketConn {
	return func(conn net.PacketConn) net.PacketConn {
		return transport.NewLossyPacketConn(conn, rate, seed)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func playTwoPlayers(t *testing.T, serverOpts []lobbyserver.Option, clientOpts func(i int) []lobbyclient.Option) {
	is := is.New(t)

	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ls, err := lobbyserver.NewLobbyServer("udp4", "127.0.0.1:0", logger, serverOpts...)
	is.NoErr(err)
	go ls.Run(ctx)

	clients := make([]*lobbyclient.LobbyClient, 2)
	for i := range clients {
		lc, err := lobbyclient.NewLobbyClient("udp4", ls.Addr().String(), logger, clientOpts(i)...)
		is.NoErr(err)
		go lc.Run(ctx)
		clients[i] = lc
	}

	// join

	ids := make([]int, len(clients))
	for i, lc := range clients {
		joinCtx, joinCancel := context.WithTimeout(ctx, 5*time.Second)
		ids[i], err = lc.Join(joinCtx)
		joinCancel()
		is.NoErr(err)
	}
	is.True(ids[0] != ids[1])

	// both see both in the lobby

	for _, lc := range clients {
		is.True(eventually(5*time.Second, func() bool {
			return len(lc.Players()) == 2
		}))
	}

	// ready up on opposite teams

	is.NoErr(clients[0].MoveTo(10, 20))
	for i, lc := range clients {
		is.NoErr(lc.SetReady(true, i))
	}

	for _, lc := range clients {
		is.True(eventually(10*time.Second, func() bool {
			started, _ := lc.GameStarted()
			return started && len(lc.Spawns()) == 2
		}))

		_, playerNum := lc.GameStarted()
		is.Equal(playerNum, 2)
	}
	is.True(ls.Started())

	for _, spawn := range clients[1].Spawns() {
		switch spawn.ActorID {
		case ids[0]:
			is.Equal(spawn.Team, 0)
			is.Equal(spawn.X, float32(10))
			is.Equal(spawn.Z, float32(20))
		case ids[1]:
			is.Equal(spawn.Team, 1)
		default:
			t.Fatalf("unexpected spawn %+v", spawn)
		}
	}

	// abilities are relayed to everyone but the caster

	is.NoErr(clients[0].CastTargeted(protocol.AbilityAutoAttack, ids[1]))
	is.True(eventually(5*time.Second, func() bool {
		return len(clients[1].Casts()) == 1
	}))
	is.Equal(clients[1].Casts()[0], &protocol.TargetedAbility{
		ActorID:  ids[0],
		Ability:  protocol.AbilityAutoAttack,
		TargetID: ids[1],
	})
	is.Equal(len(clients[0].Casts()), 0)
}

func TestTwoPlayers(t *testing.T) {
	playTwoPlayers(t,
		[]lobbyserver.Option{lobbyserver.WithTickInterval(10 * time.Millisecond)},
		func(int) []lobbyclient.Option {
			return []lobbyclient.Option{lobbyclient.WithTickInterval(10 * time.Millisecond)}
		},
	)
}

func TestTwoPlayersLossy(t *testing.T) {
	playTwoPlayers(t,
		[]lobbyserver.Option{
			lobbyserver.WithTickInterval(10 * time.Millisecond),
			lobbyserver.WithPacketConn(lossy(0.3, 1)),
		},
		func(i int) []lobbyclient.Option {
			return []lobbyclient.Option{
				lobbyclient.WithTickInterval(10 * time.Millisecond),
				lobbyclient.WithPacketConn(lossy(0.3, uint64(i)+2)),
			}
		},
	)
}
