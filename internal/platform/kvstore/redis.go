package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "taracart:kv:"

// RedisStore is the primary durable backend when a Redis address is configured.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("kvstore: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvstore: redis get: %w", err)
	}
	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kvstore: redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	removed, err := s.client.Del(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return fmt.Errorf("kvstore: redis del: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}
