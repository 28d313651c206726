package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisSessionCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionCache(client redis.UniversalClient, prefix string) *RedisSessionCache {
	if prefix == "" {
		prefix = "dead_sessions"
	}
	return &RedisSessionCache{client: client, prefix: prefix}
}

func (c *RedisSessionCache) IsDead(ctx context.Context, sessionID string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisSessionCache) MarkDead(ctx context.Context, sessionID string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(sessionID), "1", ttl).Err()
}

func (c *RedisSessionCache) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, sessionID)
}
