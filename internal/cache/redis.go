package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"receiptledger/internal/core"
)

// RedisReportCache shares the latest report between processes.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient accepts either a redis:// URL or a bare host:port.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if !strings.Contains(redisURL, "://") {
		redisURL = "redis://" + redisURL
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

func (c *RedisReportCache) GetLatest(ctx context.Context) (core.PublishedReport, bool, error) {
	b, err := c.client.Get(ctx, latestReportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.PublishedReport{}, false, nil
	}
	if err != nil {
		return core.PublishedReport{}, false, fmt.Errorf("redis get: %w", err)
	}
	var r core.PublishedReport
	if err := json.Unmarshal(b, &r); err != nil {
		return core.PublishedReport{}, false, fmt.Errorf("decode cached report: %w", err)
	}
	return r, true, nil
}

func (c *RedisReportCache) SetLatest(ctx context.Context, r core.PublishedReport) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, latestReportKey, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, latestReportKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}
