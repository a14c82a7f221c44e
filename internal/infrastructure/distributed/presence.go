package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nido/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const presenceTTL = 2 * time.Minute

// PresenceRegistry mirrors rendezvous registrations into Redis so that
// several relay instances (or an operator dashboard) share one view of
// which devices are currently reachable. Entries expire on their own
// when a relay dies without cleaning up.
type PresenceRegistry struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	prefix     string
}

// NewPresenceRegistry creates a new presence registry
func NewPresenceRegistry(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *PresenceRegistry {
	return &PresenceRegistry{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		prefix:     "nido:presence:",
	}
}

// RegisterDevice records a device as reachable through this instance.
func (r *PresenceRegistry) RegisterDevice(ctx context.Context, deviceID domain.DeviceID) error {
	record := map[string]interface{}{
		"instance_id":   r.instanceID,
		"registered_at": time.Now().Unix(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	if err := r.client.Set(ctx, r.deviceKey(deviceID), data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	instanceKey := r.instanceKey()
	if err := r.client.SAdd(ctx, instanceKey, string(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to add device to instance set: %w", err)
	}
	r.client.Expire(ctx, instanceKey, presenceTTL)
	return nil
}

// UnregisterDevice removes a device's presence record.
func (r *PresenceRegistry) UnregisterDevice(ctx context.Context, deviceID domain.DeviceID) error {
	r.client.SRem(ctx, r.instanceKey(), string(deviceID))
	return r.client.Del(ctx, r.deviceKey(deviceID)).Err()
}

// Locate reports which instance a device is registered on, if any.
func (r *PresenceRegistry) Locate(ctx context.Context, deviceID domain.DeviceID) (string, bool, error) {
	data, err := r.client.Get(ctx, r.deviceKey(deviceID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up device: %w", err)
	}

	var record struct {
		InstanceID string `json:"instance_id"`
	}
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal presence record: %w", err)
	}
	return record.InstanceID, true, nil
}

// InstanceDevices lists the devices registered on this instance.
func (r *PresenceRegistry) InstanceDevices(ctx context.Context) ([]domain.DeviceID, error) {
	members, err := r.client.SMembers(ctx, r.instanceKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance devices: %w", err)
	}

	devices := make([]domain.DeviceID, len(members))
	for i, id := range members {
		devices[i] = domain.DeviceID(id)
	}
	return devices, nil
}

// SyncLoop periodically mirrors the relay's live registrations into
// Redis, refreshing TTLs and dropping devices that disconnected.
func (r *PresenceRegistry) SyncLoop(ctx context.Context, interval time.Duration, devices func() []domain.DeviceID) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.Cleanup(context.Background()); err != nil {
				r.logger.Warnw("presence cleanup failed", "error", err)
			}
			return
		case <-ticker.C:
			r.sync(ctx, devices())
		}
	}
}

func (r *PresenceRegistry) sync(ctx context.Context, connected []domain.DeviceID) {
	live := make(map[domain.DeviceID]bool, len(connected))
	for _, id := range connected {
		live[id] = true
		if err := r.RegisterDevice(ctx, id); err != nil {
			r.logger.Warnw("presence refresh failed", "device_id", id, "error", err)
		}
	}

	known, err := r.InstanceDevices(ctx)
	if err != nil {
		r.logger.Warnw("presence listing failed", "error", err)
		return
	}
	for _, id := range known {
		if !live[id] {
			if err := r.UnregisterDevice(ctx, id); err != nil {
				r.logger.Warnw("presence removal failed", "device_id", id, "error", err)
			}
		}
	}
}

// Cleanup removes every record owned by this instance, for shutdown.
func (r *PresenceRegistry) Cleanup(ctx context.Context) error {
	devices, err := r.InstanceDevices(ctx)
	if err != nil {
		return err
	}
	for _, id := range devices {
		if err := r.UnregisterDevice(ctx, id); err != nil {
			r.logger.Warnw("failed to unregister device during cleanup",
				"device_id", id,
				"error", err,
			)
		}
	}
	return r.client.Del(ctx, r.instanceKey()).Err()
}

func (r *PresenceRegistry) deviceKey(deviceID domain.DeviceID) string {
	return r.prefix + string(deviceID)
}

func (r *PresenceRegistry) instanceKey() string {
	return fmt.Sprintf("nido:relay:%s:devices", r.instanceID)
}
