package storage

import "context"

// Store is the durable key-value store the alarm daemon persists into.
// Each Set is atomic: a concurrent Get sees the old or the new value, never a
// partial write.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Drivers accepted by the storage.driver setting.
const (
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)
