// Package kv adapts a remote key/value service into the best-effort cache
// the rest of the addon relies on. Reads degrade to a miss and writes to a
// logged no-op, so a fully unavailable store only costs performance.
package kv

import "context"

// Store is the raw contract every backend implements. Get reports a missing
// key as found=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// ListKeys returns at most one backend page of keys; callers must not
	// assume full enumeration beyond the backend's page limit.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// BatchDeleter is implemented by backends with a native multi-key delete.
// Callers chunk to MaxBatchSize and keep a per-key fallback for failures.
type BatchDeleter interface {
	DeleteBatch(ctx context.Context, keys []string) error
	MaxBatchSize() int
}

// Pinger is implemented by backends that can cheaply verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
