package ports

import "context"

// DeviceStore is the local encrypted key-value persistence capability.
// Values are opaque to the core.
type DeviceStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the stored keys, used by the backup snapshotter.
	Keys(ctx context.Context) ([]string, error)
}
