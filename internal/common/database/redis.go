package database

import (
	"context"
	"fmt"
	"time"

	"academic360-notifications/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient owns the connection pool used for the alert cache and the
// in-app pub/sub channels.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) *RedisClient {
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 10
	}
	minIdle := cfg.MinIdle
	if minIdle > poolSize {
		minIdle = poolSize
	}

	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
	})}
}

// Ping reports whether the server answers within ctx.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.Client
}
