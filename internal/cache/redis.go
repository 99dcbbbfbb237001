package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by a shared Redis instance so stage results are
// reused across replicas. Expiry is delegated to Redis key TTLs.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an established client. The prefix namespaces keys so the
// cache can share a database with other state.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "stagecache"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+":"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+":"+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

var _ Cache = (*Redis)(nil)
