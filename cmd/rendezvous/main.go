package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nido/internal/infrastructure/distributed"
	"nido/internal/infrastructure/repositories"
	signalinfra "nido/internal/infrastructure/signal"
	"nido/pkg/config"
	"nido/pkg/logger"
	"nido/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "configuration file")
	address := flag.String("addr", ":8443", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := signalinfra.NewRelay(logger.Named(zapLogger, "relay"))
	relay.SetPingInterval(cfg.Signal.PingInterval)
	relay.SetPongTimeout(cfg.Signal.PongTimeout)

	// Shared presence view when several relays ride one Redis.
	factory, err := repositories.NewStoreFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer factory.Close()

	if redisClient := factory.RedisClient(); redisClient != nil {
		presence := distributed.NewPresenceRegistry(redisClient, utils.GenerateID("relay"), logger.Named(zapLogger, "presence"))
		go presence.SyncLoop(ctx, 30*time.Second, relay.ConnectedDevices)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relay.HandleWebSocket)
	mux.HandleFunc("/health", relay.HealthCheck)

	srv := &http.Server{
		Addr:        *address,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("rendezvous relay listening", "address", *address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("relay failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during relay shutdown", "error", err)
	}

	log.Info("rendezvous relay stopped")
}
