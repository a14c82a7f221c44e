package repositories

import (
	"context"

	"nido/internal/core/ports"
	"nido/internal/infrastructure/repositories/memory"
	redisrepo "nido/internal/infrastructure/repositories/redis"
	"nido/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StoreFactory creates the device store with fallback support
type StoreFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.SugaredLogger) (*StoreFactory, error) {
	factory := &StoreFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis device store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory device store")
	}

	return factory, nil
}

// CreateDeviceStore creates the device store (Redis or memory with fallback)
func (f *StoreFactory) CreateDeviceStore(deviceID string) ports.DeviceStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisDeviceStore(f.redisClient, deviceID)
	}
	return memory.NewMemoryDeviceStore()
}

// RedisClient exposes the shared Redis connection for components that
// ride the same instance (event bus, presence). Nil when running on the
// memory store.
func (f *StoreFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes Redis connection if used
func (f *StoreFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *StoreFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
