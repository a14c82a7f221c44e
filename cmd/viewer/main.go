package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/orchestrator"
	"nido/internal/core/services"
	"nido/internal/infrastructure/device"
	"nido/internal/infrastructure/distributed"
	"nido/internal/infrastructure/monitoring"
	"nido/internal/infrastructure/repositories"
	signalinfra "nido/internal/infrastructure/signal"
	webrtcinfra "nido/internal/infrastructure/webrtc"
	"nido/pkg/config"
	"nido/pkg/logger"
	"nido/pkg/retry"
	"nido/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "configuration file")
	displayName := flag.String("name", "Nido Viewer", "name announced to the camera")
	cameraID := flag.String("camera", "", "camera device ID to connect to")
	token := flag.String("token", "", "pairing token for the camera")
	payloadJSON := flag.String("payload", "", "scanned pairing payload (JSON)")
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

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "nido-viewer",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	factory, err := repositories.NewStoreFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer factory.Close()
	store := factory.CreateDeviceStore("viewer")

	collector := monitoring.NewCollector()

	identityService := services.NewIdentityService(store, cfg.Admission.SessionTokenTTL, logger.Named(zapLogger, "identity"))
	self, err := identityService.EnsureIdentity(ctx, *displayName)
	if err != nil {
		log.Fatalw("failed to establish device identity", "error", err)
	}

	history := services.NewHistoryService(store, domain.ViewerHistoryMaxEntries, logger.Named(zapLogger, "history"))

	payload, err := resolvePayload(ctx, history, *cameraID, *token, *payloadJSON)
	if err != nil {
		log.Fatalw("no camera to connect to", "error", err)
	}

	client := signalinfra.NewClient(signalinfra.ClientConfig{
		URL:          cfg.Signal.URL,
		PingInterval: cfg.Signal.PingInterval,
		PongTimeout:  cfg.Signal.PongTimeout,
		WriteTimeout: cfg.Signal.WriteTimeout,
		Reconnect: retry.Config{
			MaxAttempts:  cfg.Signal.Reconnect.MaxAttempts,
			InitialDelay: cfg.Signal.Reconnect.InitialDelay,
			MaxDelay:     cfg.Signal.Reconnect.MaxDelay,
			Multiplier:   2.0,
		},
	}, self.ID, logger.Named(zapLogger, "signal"))
	network := webrtcinfra.NewNetwork(webrtcinfra.DefaultConfig(), client, self.ID, logger.Named(zapLogger, "webrtc"))

	viewer := orchestrator.NewViewer(orchestrator.ViewerConfig{
		DisplayName:    *displayName,
		DeviceID:       self.ID,
		ConnectTimeout: cfg.Signal.ConnectTimeout,
		// Stall sampling keeps the remote stream honest.
		WatchdogInterval: cfg.Watchdog.SampleInterval,
		Reconnect: retry.Config{
			MaxAttempts:  cfg.Signal.Reconnect.MaxAttempts,
			InitialDelay: cfg.Signal.Reconnect.InitialDelay,
			MaxDelay:     cfg.Signal.Reconnect.MaxDelay,
			Multiplier:   2.0,
		},
	}, network, device.NewLogNotifier(logger.Named(zapLogger, "notify")), history, collector, logger.Named(zapLogger, "viewer"))

	viewer.OnStateChange(func(state orchestrator.ViewerState) {
		log.Infow("session state", "state", state)
	})
	viewer.OnUnstable(func(unstable bool) {
		log.Warnw("stream stability changed", "unstable", unstable)
	})

	// Household event feed when Redis is shared
	if redisClient := factory.RedisClient(); redisClient != nil {
		eventBus := distributed.NewEventBus(redisClient, self.ID, logger.Named(zapLogger, "events"))
		defer eventBus.Close()

		viewer.OnLowBattery(func(low bool) {
			if !low {
				return
			}
			publishCtx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer publishCancel()
			_ = eventBus.PublishBatteryLow(publishCtx, domain.LowBatteryThreshold)
		})

		// Mirror what the rest of the household is doing.
		go func() {
			err := eventBus.Subscribe(ctx, func(event *distributed.Event) error {
				log.Infow("household event", "type", event.Type, "from", event.DeviceID)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				log.Warnw("household event feed closed", "error", err)
			}
		}()
	} else {
		viewer.OnLowBattery(func(low bool) {
			log.Infow("camera battery indicator", "low", low)
		})
	}

	if err := viewer.Connect(ctx, payload); err != nil {
		log.Fatalw("failed to connect to camera", "camera", payload.ID, "error", err)
	}
	log.Infow("connected", "camera", viewer.CameraName(), "facing", viewer.CameraFacing())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	viewer.Close()
	log.Info("viewer stopped")
}

// resolvePayload picks the camera to dial: explicit flags first, then a
// scanned payload, then the most recently remembered camera.
func resolvePayload(ctx context.Context, history *services.HistoryService, cameraID, token, payloadJSON string) (domain.PairingPayload, error) {
	if cameraID != "" && token != "" {
		return domain.PairingPayload{ID: domain.DeviceID(cameraID), Token: token}, nil
	}
	if payloadJSON != "" {
		return services.DecodePairingPayload([]byte(payloadJSON))
	}

	entries, err := history.List(ctx)
	if err != nil {
		return domain.PairingPayload{}, err
	}
	for _, entry := range entries {
		if entry.Token != "" {
			return domain.PairingPayload{ID: entry.PeerID, Token: entry.Token}, nil
		}
	}
	return domain.PairingPayload{}, domain.ErrEntryNotFound
}
