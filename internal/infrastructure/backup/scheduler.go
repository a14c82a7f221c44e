package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nido/internal/core/ports"
	"nido/pkg/backup"

	"go.uber.org/zap"
)

// Scheduler snapshots the device store on a fixed cadence so identity,
// pairing token, history and capture preferences survive storage loss.
type Scheduler struct {
	service  *backup.Service
	store    ports.DeviceStore
	interval time.Duration
	logger   *zap.SugaredLogger
	stopChan chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval time.Duration
}

// NewScheduler creates a new backup scheduler
func NewScheduler(service *backup.Service, store ports.DeviceStore, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		service:  service,
		store:    store,
		interval: cfg.Interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start starts the backup scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial backup
	s.runBackup(ctx)

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the backup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// runBackup performs a backup
func (s *Scheduler) runBackup(ctx context.Context) {
	entries, err := s.collectEntries(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect backup entries", "error", err)
		return
	}
	if len(entries) == 0 {
		s.logger.Debug("device store empty, skipping backup")
		return
	}

	name, err := s.service.Create(ctx, entries)
	if err != nil {
		s.logger.Errorw("failed to create backup", "error", err)
		return
	}
	s.logger.Infow("backup created", "name", name, "entries", len(entries))
}

// collectEntries reads the full device store content.
func (s *Scheduler) collectEntries(ctx context.Context) (map[string]json.RawMessage, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list store keys: %w", err)
	}

	entries := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		value, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read key %s: %w", key, err)
		}
		if !found {
			continue
		}
		if json.Valid(value) {
			entries[key] = json.RawMessage(value)
		} else {
			// Non-JSON values are wrapped so the snapshot stays one document.
			wrapped, err := json.Marshal(string(value))
			if err != nil {
				return nil, err
			}
			entries[key] = wrapped
		}
	}
	return entries, nil
}
