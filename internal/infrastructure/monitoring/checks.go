package monitoring

import (
	"context"
	"fmt"
	"time"

	"nido/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck probes the shared Redis connection.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddStoreCheck verifies the device store responds.
func (h *HealthChecker) AddStoreCheck(store ports.DeviceStore, timeout time.Duration) {
	h.AddCheck("device_store", func(ctx context.Context) (bool, error) {
		if _, err := store.Keys(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddSignalingCheck verifies the rendezvous registration is live.
func (h *HealthChecker) AddSignalingCheck(connected func() bool) {
	h.AddCheck("signaling", func(ctx context.Context) (bool, error) {
		if !connected() {
			return false, fmt.Errorf("rendezvous connection down")
		}
		return true, nil
	}, time.Second)
}
