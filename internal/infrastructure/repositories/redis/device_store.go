package redis

import (
	"context"
	"fmt"

	"nido/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces device state so a shared Redis instance can
// serve several devices.
const keyPrefix = "nido:device:"

// RedisDeviceStore is a ports.DeviceStore on Redis. Keys live under a
// per-device hash so Keys() never scans the whole instance.
type RedisDeviceStore struct {
	client   *redis.Client
	deviceNS string
}

func NewRedisDeviceStore(client *redis.Client, deviceID string) *RedisDeviceStore {
	return &RedisDeviceStore{
		client:   client,
		deviceNS: keyPrefix + deviceID,
	}
}

func (s *RedisDeviceStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.HGet(ctx, s.deviceNS, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisDeviceStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.HSet(ctx, s.deviceNS, key, value).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisDeviceStore) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.deviceNS, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisDeviceStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.deviceNS).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	return keys, nil
}

var _ ports.DeviceStore = (*RedisDeviceStore)(nil)
