// Package cache defines the port interface for key-value caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. Implementations must be
// safe for concurrent use; the resolution services share one instance across
// request handlers.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Flush drops every entry. Used by the revalidation dispatcher when a
	// clone record changes and all derived domain mappings become suspect.
	Flush(ctx context.Context) error
}
