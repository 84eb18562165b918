package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a Redis client from environment variables with sane
// defaults for a local dev instance on :6379 without auth.
func NewRedisClient() (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         GetString("REDIS_ADDR", "localhost:6379"),
		Password:     GetString("REDIS_PASSWORD", ""),
		DB:           GetInt("REDIS_DB", 0),
		PoolSize:     GetInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: GetInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
