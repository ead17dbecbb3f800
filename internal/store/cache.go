package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sawpanic/riskrun/internal/engine"
)

const latestCycleKey = "riskrun:cycle:latest"

// RedisCache publishes the latest cycle result so position sizing and
// dashboards can read it without touching Postgres.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates the cache against the given Redis address.
func NewRedisCache(addr string, db int, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ttl:    ttl,
	}
}

// SetLatest overwrites the published cycle result.
func (c *RedisCache) SetLatest(ctx context.Context, result *engine.CycleResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cycle: %w", err)
	}
	if err := c.client.Set(ctx, latestCycleKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache cycle: %w", err)
	}
	return nil
}

// GetLatest reads the last published cycle result, nil when none exists.
func (c *RedisCache) GetLatest(ctx context.Context) (*engine.CycleResult, error) {
	payload, err := c.client.Get(ctx, latestCycleKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached cycle: %w", err)
	}
	var result engine.CycleResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode cached cycle: %w", err)
	}
	return &result, nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error { return c.client.Close() }
