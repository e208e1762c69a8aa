package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store for terminals that share session state.
// Keys are namespaced as "suitekit:{profile}:{key}".
type RedisStore struct {
	client  redis.Cmdable
	profile string
}

// NewRedisStore creates a Redis-backed store for the given profile.
func NewRedisStore(client redis.Cmdable, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, profile: profile}
}

// FormatRedisKey builds the namespaced Redis key.
func FormatRedisKey(profile, key string) string {
	return fmt.Sprintf("suitekit:%s:%s", profile, key)
}

// Get returns the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, FormatRedisKey(s.profile, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key without expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, FormatRedisKey(s.profile, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, FormatRedisKey(s.profile, key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
