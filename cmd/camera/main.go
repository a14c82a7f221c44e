package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/orchestrator"
	"nido/internal/core/services"
	httphandlers "nido/internal/handlers/http"
	analyzerinfra "nido/internal/infrastructure/analyzer"
	backupinfra "nido/internal/infrastructure/backup"
	"nido/internal/infrastructure/capture"
	"nido/internal/infrastructure/device"
	"nido/internal/infrastructure/distributed"
	"nido/internal/infrastructure/monitoring"
	"nido/internal/infrastructure/repositories"
	signalinfra "nido/internal/infrastructure/signal"
	webrtcinfra "nido/internal/infrastructure/webrtc"
	"nido/pkg/backup"
	"nido/pkg/config"
	"nido/pkg/logger"
	"nido/pkg/retry"
	"nido/pkg/tracing"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/nido/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "nido-camera",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	// Device store (Redis with memory fallback)
	factory, err := repositories.NewStoreFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer factory.Close()
	store := factory.CreateDeviceStore("camera")

	// Snapshot restore and scheduling
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			log.Fatalw("failed to open backup storage", "error", err)
		}
		backupService := backup.NewService(storage, "1.0", cfg.Backup.Keep)

		restorer := backupinfra.NewRestoreService(backupService, store, log)
		if err := restorer.RestoreLatestIfEmpty(ctx); err != nil {
			log.Warnw("snapshot restore failed", "error", err)
		}

		scheduler := backupinfra.NewScheduler(backupService, store, backupinfra.Config{Interval: cfg.Backup.Interval}, log)
		go scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	collector := monitoring.NewCollector()

	// Identity first: the signaling registration needs the device ID.
	identityService := services.NewIdentityService(store, cfg.Admission.SessionTokenTTL, logger.Named(zapLogger, "identity"))
	self, err := identityService.EnsureIdentity(ctx, "Nido Camera")
	if err != nil {
		log.Fatalw("failed to establish device identity", "error", err)
	}

	// Rendezvous client and peer network
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

	// Core services
	registry := services.NewRegistryService(services.RegistryConfig{
		SettleDelay:    cfg.Admission.SettleDelay,
		AttemptsPerMin: cfg.Admission.AttemptsPerMin,
		AttemptBurst:   cfg.Admission.AttemptBurst,
	}, identityService, collector, logger.Named(zapLogger, "registry"))

	media := services.NewMediaService(capture.NewSyntheticBackend(logger.Named(zapLogger, "capture")), collector, logger.Named(zapLogger, "media"))

	analyzerService := services.NewAnalyzerService(
		media,
		analyzerinfra.NewLuminanceAnalyzer(0),
		registry.Count,
		registry.Broadcast,
		collector,
		logger.Named(zapLogger, "analyzer"),
	)
	analyzerService.SetSensitivity(domain.Sensitivity(cfg.Analyzer.Sensitivity))
	analyzerService.SetNotificationsEnabled(cfg.Analyzer.Enabled && cfg.Analyzer.Notifications)

	lullaby := services.NewLullabyService(device.NewDiscardSink(), logger.Named(zapLogger, "lullaby"))
	history := services.NewHistoryService(store, domain.HistoryMaxEntries, logger.Named(zapLogger, "history"))

	battery := device.NewSimBatteryMonitor(1.0, true, 0.01, time.Minute)
	defer battery.Close()

	camera := orchestrator.NewCamera(orchestrator.CameraConfig{
		ConnectTimeout: cfg.Signal.ConnectTimeout,
		DefaultParams: domain.SourceParams{
			Facing:     domain.Facing(cfg.Media.Facing),
			Quality:    domain.Quality(cfg.Media.Quality),
			MicEnabled: cfg.Media.MicEnabled,
		},
	}, network, identityService, registry, media, analyzerService, lullaby, history, battery, store, logger.Named(zapLogger, "camera"))

	// Household event feed when Redis is shared
	if redisClient := factory.RedisClient(); redisClient != nil {
		eventBus := distributed.NewEventBus(redisClient, self.ID, logger.Named(zapLogger, "events"))
		defer eventBus.Close()

		camera.OnStateChange(func(state orchestrator.CameraState) {
			publishCtx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer publishCancel()
			switch state {
			case orchestrator.CameraSignalingOpen:
				_ = eventBus.PublishCameraState(publishCtx, true)
			case orchestrator.CameraClosed:
				_ = eventBus.PublishCameraState(publishCtx, false)
			}
		})
		camera.OnViewerAdmitted(func(viewer domain.DeviceID, name string) {
			publishCtx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer publishCancel()
			_ = eventBus.PublishViewerAdmitted(publishCtx, viewer, name)
		})
		camera.OnViewerLeft(func(remaining int) {
			publishCtx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer publishCancel()
			_ = eventBus.PublishViewerLeft(publishCtx, remaining)
		})
		analyzerService.OnAlert(func(status domain.AnalysisStatus, description string) {
			publishCtx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer publishCancel()
			_ = eventBus.PublishAlert(publishCtx, status, description)
		})
	}

	if err := camera.Start(ctx, "Nido Camera"); err != nil {
		log.Fatalw("failed to start camera", "error", err)
	}

	// Health checks
	health := monitoring.NewHealthChecker()
	health.AddStoreCheck(store, 2*time.Second)
	health.AddSignalingCheck(func() bool {
		state := camera.State()
		return state == orchestrator.CameraSignalingOpen || state == orchestrator.CameraLive
	})
	if redisClient := factory.RedisClient(); redisClient != nil {
		health.AddRedisCheck(redisClient, 2*time.Second)
	}

	// Local management API
	var srv *http.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		pairingToken, err := identityService.EnsureToken(ctx)
		if err != nil {
			log.Fatalw("failed to establish pairing token", "error", err)
		}

		handler := httphandlers.NewDeviceHandler(camera, history, registry, media, device.NewQRCodeEncoder(256))
		router := httphandlers.NewRouter(cfg, log, handler, health)
		httphandlers.RegisterSessionRoutes(router, identityService, pairingToken)

		srv = &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Infow("local API listening", "address", cfg.HTTP.Address)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("local API failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	camera.Close()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during server shutdown", "error", err)
		}
	}

	log.Info("camera stopped")
}
