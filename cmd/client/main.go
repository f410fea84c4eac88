package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blukai/rudpnet/internal/lobbyclient"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/blukai/rudpnet/internal/transport"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

type options struct {
	server     string
	team       int
	dropRate   float64
	seed       uint64
	logLevel   string
	tick       time.Duration
	moveEvery  time.Duration
	joinWithin time.Duration
}

func configureLogger(level string) *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Level = log.ParseLevel(level)
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func newRootCmd() *cobra.Command {
	opts := new(options)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a lobby server, ready up and wander around",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.team < 0 || opts.team > protocol.PlayerTeamMax {
				return fmt.Errorf("team must be within [0, %d]", protocol.PlayerTeamMax)
			}
			if opts.dropRate < 0 || opts.dropRate >= 1 {
				return fmt.Errorf("drop rate must be within [0, 1)")
			}

			cmd.SilenceUsage = true
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "127.0.0.1:5000", "lobby server address")
	flags.IntVar(&opts.team, "team", 0, "team to ready up on")
	flags.Float64Var(&opts.dropRate, "drop-rate", 0, "fraction of outgoing datagrams to drop")
	flags.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "seed for drops and movement")
	flags.StringVar(&opts.logLevel, "log-level", "info", "trace, debug, info, warn or error")
	flags.DurationVar(&opts.tick, "tick", 50*time.Millisecond, "send interval")
	flags.DurationVar(&opts.moveEvery, "move-every", time.Second, "how often to pick a new position")
	flags.DurationVar(&opts.joinWithin, "join-timeout", 10*time.Second, "give up joining after this long")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := configureLogger(opts.logLevel)

	clientOpts := []lobbyclient.Option{lobbyclient.WithTickInterval(opts.tick)}
	if opts.dropRate > 0 {
		clientOpts = append(clientOpts, lobbyclient.WithPacketConn(func(conn net.PacketConn) net.PacketConn {
			return transport.NewLossyPacketConn(conn, opts.dropRate, opts.seed)
		}))
	}

	lobbyClient, err := lobbyclient.NewLobbyClient("udp4", opts.server, logger, clientOpts...)
	if err != nil {
		return fmt.Errorf("could not construct lobby client: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	var lobbyClientRunErr error
	go func() {
		defer wg.Done()
		lobbyClientRunErr = lobbyClient.Run(ctx)
	}()

	joinCtx, joinCancel := context.WithTimeout(ctx, opts.joinWithin)
	clientID, err := lobbyClient.Join(joinCtx)
	joinCancel()
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}

	if err := lobbyClient.SetReady(true, opts.team); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("could not ready up: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		wander(ctx, lobbyClient, logger, clientID, opts)
	}()

	<-ctx.Done()
	wg.Wait()
	if lobbyClientRunErr != nil {
		return fmt.Errorf("lobby client run failed: %w", lobbyClientRunErr)
	}

	return nil
}

func wander(ctx context.Context, lc *lobbyclient.LobbyClient, logger *log.Logger, clientID int, opts *options) {
	rng := rand.New(rand.NewPCG(opts.seed, uint64(clientID)))

	ticker := time.NewTicker(opts.moveEvery)
	defer ticker.Stop()

	var announced bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			x := protocol.CoordMin + rng.Float32()*(protocol.CoordMax-protocol.CoordMin)
			z := protocol.CoordMin + rng.Float32()*(protocol.CoordMax-protocol.CoordMin)
			if err := lc.MoveTo(x, z); err != nil {
				logger.Error().Msgf("could not move: %v", err)
			}

			if started, playerNum := lc.GameStarted(); started && !announced {
				announced = true
				logger.Info().
					Int("players", playerNum).
					Int("spawns", len(lc.Spawns())).
					Msg("in game")
			}
		}
	}
}

func erringMain() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fucky wucky! %v\n", err)
		os.Exit(42)
	}
}
