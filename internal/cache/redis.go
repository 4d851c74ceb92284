// Package cache stores classification results by image content hash.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Brownie44l1/xray-api/internal/interpret"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "xray:result:"

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(opts Options) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &RedisCache{
		client: client,
		ttl:    opts.TTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, hash string) (*interpret.Result, error) {
	data, err := c.client.Get(ctx, keyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result interpret.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RedisCache) Set(ctx context.Context, hash string, result interpret.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+hash, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
