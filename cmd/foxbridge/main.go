package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/foxbridge/internal/config"
	"github.com/adred-codev/foxbridge/internal/health"
	"github.com/adred-codev/foxbridge/internal/logging"
	"github.com/adred-codev/foxbridge/internal/metrics"
	"github.com/adred-codev/foxbridge/pkg/broker"
	"github.com/adred-codev/foxbridge/pkg/natsbridge"
	"github.com/adred-codev/foxbridge/pkg/wire"
)

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
		demo  = flag.Bool("demo", true, "publish the demo sine channel, service and parameters")
	)
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		logger := logging.New(logging.Config{Level: "info", Format: logging.FormatJSON})
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: logging.Format(cfg.LogFormat),
	})

	var listener broker.Listener
	var store *paramStore
	if *demo {
		store = newParamStore(logger)
		listener = store
	}

	var srv *broker.Server
	opts := broker.Options{
		Addr:               cfg.Addr,
		Name:               cfg.Name,
		Capabilities:       cfg.Capabilities,
		SupportedEncodings: cfg.SupportedEncodings,
		SessionID:          uuid.NewString(),
		Listener:           listener,
		Logger:             logger,
		MaxConnections:     cfg.MaxConnections,
		SendQueueSize:      cfg.SendQueueSize,
		ClientMessageRate:  cfg.ClientMsgsPerSec,
		ClientMessageBurst: cfg.ClientMsgBurst,
	}
	if cfg.MetricsEnabled {
		opts.MetricsHandler = metrics.Handler()
	}
	if cfg.HealthEnabled {
		opts.HealthHandler = health.NewHandler(health.Stats{
			ConnectionCount: func() int { return srv.ConnectionCount() },
			MaxConnections:  cfg.MaxConnections,
		})
	}
	srv = broker.New(opts)

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if store != nil {
		go runDemo(ctx, srv, store, logger, hasCapability(cfg.Capabilities, wire.CapabilityTime))
	}

	var bridge *natsbridge.Bridge
	if cfg.NATSUrl != "" {
		bridge, err = natsbridge.New(natsbridge.Config{
			URL:      cfg.NATSUrl,
			Subjects: cfg.NATSSubjects,
		}, srv, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect NATS bridge")
		}
		if err := bridge.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start NATS bridge")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("Shutting down...")
	cancel()

	if bridge != nil {
		bridge.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}

func hasCapability(capabilities []string, cap string) bool {
	for _, c := range capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
