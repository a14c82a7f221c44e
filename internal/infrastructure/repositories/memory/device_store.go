package memory

import (
	"context"
	"sync"

	"nido/internal/core/ports"
)

// MemoryDeviceStore is the in-process ports.DeviceStore. State does not
// survive a restart; it backs tests and ephemeral deployments.
type MemoryDeviceStore struct {
	data map[string][]byte
	mu   sync.RWMutex
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{
		data: make(map[string][]byte),
	}
}

func (s *MemoryDeviceStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	if !exists {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *MemoryDeviceStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryDeviceStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryDeviceStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	return keys, nil
}

var _ ports.DeviceStore = (*MemoryDeviceStore)(nil)
