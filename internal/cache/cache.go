// Package cache provides the TTL key-value store consulted by stage clients
// before issuing paid external API calls. Entries are shared across jobs with
// equivalent inputs; a read past expiry is a miss.
package cache

import (
	"context"
	"time"
)

// Cache is a concurrency-safe key-value store with per-entry TTL. Writes are
// last-writer-wins; no cross-key atomicity is offered or needed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
