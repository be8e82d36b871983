package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisNameCache(client *redis.Client) *RedisNameCache {
	return &RedisNameCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisNameCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisNameCache) Get(ctx context.Context, productID string) (string, error) {
	name, err := r.client.Get(ctx, cacheKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return name, nil
}

func (r RedisNameCache) Set(ctx context.Context, productID string, name string) error {
	// Jitter spreads expiry so a whole report's worth of keys does not
	// fall out of cache at once.
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, cacheKey(productID), name, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisNameCache) Delete(ctx context.Context, productID string) error {
	if err := r.client.Del(ctx, cacheKey(productID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(productID string) string {
	return fmt.Sprintf("product:name:%s", productID)
}
