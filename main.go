// Command match-relay pairs two clients per match id over WebSocket, runs the
// ready handshake between them and relays their messages.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/Pranay-ai/match-relay/internal/config"
	"github.com/Pranay-ai/match-relay/internal/events"
	"github.com/Pranay-ai/match-relay/internal/match"
	"github.com/Pranay-ai/match-relay/internal/observability"
	"github.com/Pranay-ai/match-relay/internal/relay"
	"github.com/Pranay-ai/match-relay/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file; empty uses defaults and environment")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	lc := server.NewLifecycle(logger)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Redis.Enabled() {
		rdb, err := events.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		defer rdb.Close()
		logger.Info("event feed enabled", zap.String("channel_prefix", cfg.Redis.ChannelPrefix))

		pub := events.NewRedisPublisher(rdb, cfg.Redis, logger)
		publisher = pub
		lc.Add("events", pub)
	} else {
		logger.Info("redis.url not set, event feed disabled")
	}

	registry := match.NewRegistry(logger)
	srv := relay.NewServer(cfg, registry, publisher, logger)

	// Stopped after http stops accepting: ends open sessions while the event
	// feed is still running.
	lc.Add("registry", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn: func() {
			registry.Shutdown()
			if !srv.Drain(cfg.Server.ShutdownTimeout) {
				logger.Warn("sessions still open after shutdown timeout", zap.Int("rooms", registry.Len()))
			}
		},
	})

	lc.Add("http", &server.HTTPService{
		Server: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		},
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	logger.Info("match relay starting", zap.String("addr", cfg.Server.Addr()))
	if err := lc.Run(ctx); err != nil {
		logger.Error("relay stopped with error", zap.Error(err))
	}
}
