package webhook

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps subscriber URLs in a redis set.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "renderhub:webhooks"
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	urls, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", s.key, err)
	}
	return urls, nil
}

func (s *RedisStore) Add(ctx context.Context, url string) error {
	if err := s.rdb.SAdd(ctx, s.key, url).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, url string) error {
	if err := s.rdb.SRem(ctx, s.key, url).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", s.key, err)
	}
	return nil
}

// Ping reports whether redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
