package cache

import (
	"context"
	"time"
)

// Entry is one cached record as seen by callers.
type Entry struct {
	Key     string    `json:"_id"`
	Value   string    `json:"value"`
	Updated time.Time `json:"updated"`
}

// API defines the cache contract exposed to transports. Implementations
// must be safe for concurrent use by multiple goroutines.
type API interface {
	// GetKey returns the entry for key, regenerating it when absent or stale.
	GetKey(ctx context.Context, key string) (Entry, error)
	// SetKey creates or overwrites the entry for key.
	SetKey(ctx context.Context, key, value string) (Entry, error)
	// DeleteKey removes the entry and returns its last state. The boolean
	// is false when the key did not exist.
	DeleteKey(ctx context.Context, key string) (Entry, bool, error)
	// GetKeys lists every key present, fresh or not.
	GetKeys(ctx context.Context) ([]string, error)
	// PurgeCache removes all entries and reports how many there were.
	PurgeCache(ctx context.Context) (int, error)
}
