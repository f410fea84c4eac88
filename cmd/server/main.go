package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blukai/rudpnet/internal/lobbyserver"
	"github.com/blukai/rudpnet/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	LobbyServerAddr4 string        `envconfig:"LOBBY_SERVER_ADDR4" required:"true" default:"0.0.0.0:5000"`
	MetricsAddr      string        `envconfig:"LOBBY_METRICS_ADDR" default:"127.0.0.1:9100"`
	TickInterval     time.Duration `envconfig:"LOBBY_TICK_INTERVAL" default:"50ms"`
	EvictAfter       time.Duration `envconfig:"LOBBY_EVICT_AFTER" default:"10s"`
	MinPlayers       int           `envconfig:"LOBBY_MIN_PLAYERS" default:"2"`
	LogLevel         string        `envconfig:"LOBBY_LOG_LEVEL" default:"info"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}
	return config, nil
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

func newAdminRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return r
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := configureLogger(config.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lobbyServer, err := lobbyserver.NewLobbyServer(
		"udp4",
		config.LobbyServerAddr4,
		logger,
		lobbyserver.WithMetrics(metrics.New(reg)),
		lobbyserver.WithTickInterval(config.TickInterval),
		lobbyserver.WithEvictAfter(config.EvictAfter),
		lobbyserver.WithMinPlayers(config.MinPlayers),
	)
	if err != nil {
		return fmt.Errorf("could not construct lobby server: %w", err)
	}
	logger.Info().Msgf("started lobby server on %s", config.LobbyServerAddr4)

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	var lobbyServerRunErr error
	go func() {
		defer wg.Done()
		lobbyServerRunErr = lobbyServer.Run(ctx)
	}()

	// empty metrics addr disables the admin server
	var adminServer *http.Server
	if config.MetricsAddr != "" {
		adminServer = &http.Server{
			Addr:              config.MetricsAddr,
			Handler:           newAdminRouter(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msgf("serving metrics on %s", config.MetricsAddr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Msgf("admin server failed: %v", err)
			}
		}()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info().Msgf("received %+v signal", sig)

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Msgf("could not shut down admin server: %v", err)
		}
	}

	cancel()
	wg.Wait()
	if lobbyServerRunErr != nil {
		return fmt.Errorf("lobby server run failed: %w", lobbyServerRunErr)
	}

	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fucky wucky! %v\n", err)
		os.Exit(42)
	}
}
