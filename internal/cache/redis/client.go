package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/cache"
	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/pkg/logger"
)

const (
	queryPrefix = "query:"
	hitsKey     = "metric:cache_hits"
	missesKey   = "metric:cache_misses"
)

// Client is a query result cache shared by every API replica.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewFromClient(client), nil
}

func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Set(ctx context.Context, key string, result *query.Result, ttl time.Duration) error {
	now := time.Now()
	data, err := json.Marshal(cache.Entry{Result: result, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	err = c.client.Set(ctx, queryPrefix+key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set query cache: %w", err)
	}

	logger.Debug("Query cached", zap.String("query_hash", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	data, err := c.client.Get(ctx, queryPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.count(ctx, missesKey)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get query cache: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	// Redis TTL granularity can outlive ExpiresAt by a few milliseconds.
	if entry.Expired(time.Now()) {
		c.count(ctx, missesKey)
		return nil, false, nil
	}

	c.count(ctx, hitsKey)
	logger.Debug("Query cache hit", zap.String("query_hash", key))
	return &entry, true, nil
}

func (c *Client) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, queryPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Query cache cleared")
	return nil
}

func (c *Client) Stats(ctx context.Context) (cache.Stats, error) {
	var entries int64
	iter := c.client.Scan(ctx, 0, queryPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		return cache.Stats{}, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	hits, err := c.metric(ctx, hitsKey)
	if err != nil {
		return cache.Stats{}, err
	}
	misses, err := c.metric(ctx, missesKey)
	if err != nil {
		return cache.Stats{}, err
	}

	return cache.NewStats(entries, hits, misses), nil
}

func (c *Client) count(ctx context.Context, name string) {
	if err := c.client.Incr(ctx, name).Err(); err != nil {
		logger.Warn("Failed to increment cache counter", zap.String("counter", name), zap.Error(err))
	}
}

func (c *Client) metric(ctx context.Context, name string) (int64, error) {
	val, err := c.client.Get(ctx, name).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return val, nil
}
