// Package main provides the game server binary: the coordinator plus its
// telnet, websocket/HTTP and health listeners.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrabble/internal/config"
	"github.com/cory-johannsen/scrabble/internal/frontend/handlers"
	"github.com/cory-johannsen/scrabble/internal/frontend/telnet"
	"github.com/cory-johannsen/scrabble/internal/frontend/web"
	"github.com/cory-johannsen/scrabble/internal/game/registry"
	"github.com/cory-johannsen/scrabble/internal/gameserver"
	"github.com/cory-johannsen/scrabble/internal/observability"
	"github.com/cory-johannsen/scrabble/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("health_addr", cfg.Health.Addr()),
		zap.Bool("reconnect_keys", cfg.Reconnect.Enabled()),
	)

	hub := handlers.NewHub(logger)
	coord := gameserver.New(registry.New(), hub, logger, cfg.Coordinator.QueueSize)

	var keys *handlers.ReconnectKeys
	if cfg.Reconnect.Enabled() {
		keys = handlers.NewReconnectKeys(cfg.Reconnect.Secret, cfg.Reconnect.TTL)
	}
	adapter := handlers.NewAdapter(coord, hub, keys, logger, cfg.Coordinator.OutboxSize)

	acceptor := telnet.NewAcceptor(cfg.Telnet, handlers.NewTelnetHandler(adapter), logger)
	httpServer := web.NewServer(cfg.HTTP, coord, adapter, logger)
	health := server.NewHealthServer(cfg.Health, logger)
	health.Track("coordinator", coord.Done())

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("coordinator", &server.FuncService{
		StartFn: func() error {
			coord.Run()
			return nil
		},
		StopFn: func() {
			coord.Close()
			<-coord.Done()
			stats := coord.Stats()
			logger.Info("coordinator drained",
				zap.Uint64("processed", stats.Processed),
				zap.Uint64("failed", stats.Failed),
				zap.Uint64("dropped_replies", stats.DroppedReplies),
			)
		},
	})
	lifecycle.Add("telnet", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	lifecycle.Add("http", &server.FuncService{
		StartFn: httpServer.ListenAndServe,
		StopFn:  httpServer.Stop,
	})
	lifecycle.Add("health", health)

	logger.Info("game server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
