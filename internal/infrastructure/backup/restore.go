package backup

import (
	"context"
	"fmt"

	"nido/internal/core/ports"
	"nido/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService rehydrates the device store from a snapshot.
type RestoreService struct {
	service *backup.Service
	store   ports.DeviceStore
	logger  *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(service *backup.Service, store ports.DeviceStore, logger *zap.SugaredLogger) *RestoreService {
	return &RestoreService{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	// OverwriteExisting replaces keys that already hold a value.
	OverwriteExisting bool
}

// RestoreFrom restores the device store from a named snapshot.
func (rs *RestoreService) RestoreFrom(ctx context.Context, name string, options RestoreOptions) error {
	snap, err := rs.service.Restore(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	return rs.apply(ctx, snap, options)
}

// RestoreLatestIfEmpty seeds a fresh store from the newest snapshot.
// A store that already holds state is left untouched, so a normal
// restart never clobbers live data.
func (rs *RestoreService) RestoreLatestIfEmpty(ctx context.Context) error {
	keys, err := rs.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect store: %w", err)
	}
	if len(keys) > 0 {
		rs.logger.Debugw("store already populated, skipping restore", "keys", len(keys))
		return nil
	}

	snap, err := rs.service.RestoreLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if snap == nil {
		rs.logger.Debug("no snapshots available")
		return nil
	}
	return rs.apply(ctx, snap, RestoreOptions{OverwriteExisting: true})
}

func (rs *RestoreService) apply(ctx context.Context, snap *backup.Snapshot, options RestoreOptions) error {
	if snap.Version == "" {
		return fmt.Errorf("invalid snapshot: missing version")
	}

	restored := 0
	for key, value := range snap.Entries {
		if !options.OverwriteExisting {
			if _, exists, err := rs.store.Get(ctx, key); err != nil {
				return fmt.Errorf("failed to check key %s: %w", key, err)
			} else if exists {
				rs.logger.Debugw("skipping existing key", "key", key)
				continue
			}
		}
		if err := rs.store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to restore key %s: %w", key, err)
		}
		restored++
	}

	rs.logger.Infow("restore completed", "entries", restored, "snapshot_at", snap.Timestamp)
	return nil
}
