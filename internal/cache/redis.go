package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const secretsKeyPrefix = "secrets:"

// RedisSecretCache хранит секреты комнат пользователя в хеше secrets:<uid>.
// Поле хеша это id комнаты, последняя запись побеждает.
type RedisSecretCache struct {
	client *redis.Client
	key    string
}

func NewRedisSecretCache(client *redis.Client, uid string) *RedisSecretCache {
	return &RedisSecretCache{
		client: client,
		key:    secretsKeyPrefix + uid,
	}
}

func (c *RedisSecretCache) Get(ctx context.Context, roomID string) (string, bool, error) {
	secret, err := c.client.HGet(ctx, c.key, roomID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached secret: %w", err)
	}
	return secret, true, nil
}

func (c *RedisSecretCache) Set(ctx context.Context, roomID, secret string) error {
	if err := c.client.HSet(ctx, c.key, roomID, secret).Err(); err != nil {
		return fmt.Errorf("cache secret: %w", err)
	}
	return nil
}

func (c *RedisSecretCache) Delete(ctx context.Context, roomID string) error {
	if err := c.client.HDel(ctx, c.key, roomID).Err(); err != nil {
		return fmt.Errorf("drop cached secret: %w", err)
	}
	return nil
}

// Clear вызывается при выходе пользователя
func (c *RedisSecretCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("clear secret cache: %w", err)
	}
	return nil
}
