package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the KVStore connector bound to the `-a` flag (F.2).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr ("host:port"). Connectivity is verified
// with a single Ping so a bad endpoint fails fast at construction
// rather than on the first Get/Set.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Get implements KVStore.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("store: redis get %s: %w", key, err)
	}
	return val, nil
}

// Set implements KVStore.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", key, err)
	}
	return nil
}

// Close implements KVStore.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
