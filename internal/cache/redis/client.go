package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/pkg/logger"
)

// Client caches expensive LLM results. A nil *Client is valid and
// behaves as a cache that never hits, so callers don't have to guard
// every call when Redis is disabled.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// SetAnalysis caches an LLM analysis result under a content key.
func (c *Client) SetAnalysis(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("analysis:%s", key), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set analysis cache: %w", err)
	}

	logger.Debug("Analysis cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetAnalysis(ctx context.Context, key string, value interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}

	data, err := c.client.Get(ctx, fmt.Sprintf("analysis:%s", key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get analysis cache: %w", err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}

	logger.Debug("Analysis cache hit", zap.String("key", key))
	return true, nil
}

// SetToolSummary caches a chat-layer tool summary for one CI.
func (c *Client) SetToolSummary(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal tool summary: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("toolsummary:%s", key), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set tool summary cache: %w", err)
	}

	logger.Debug("Tool summary cached", zap.String("key", key))
	return nil
}

func (c *Client) GetToolSummary(ctx context.Context, key string, value interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}

	data, err := c.client.Get(ctx, fmt.Sprintf("toolsummary:%s", key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get tool summary cache: %w", err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal tool summary: %w", err)
	}

	logger.Debug("Tool summary cache hit", zap.String("key", key))
	return true, nil
}

// InvalidateCI drops all cached entries for one CI, used when its tool
// data on disk changes.
func (c *Client) InvalidateCI(ctx context.Context, ciID string) error {
	if c == nil {
		return nil
	}

	for _, pattern := range []string{
		fmt.Sprintf("analysis:%s*", ciID),
		fmt.Sprintf("toolsummary:%s*", ciID),
	} {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			err := c.client.Del(ctx, iter.Val()).Err()
			if err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to iterate cache keys: %w", err)
		}
	}

	logger.Info("CI cache invalidated", zap.String("ci_id", ciID))
	return nil
}

func (c *Client) IncrementMetric(ctx context.Context, metricName string) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, fmt.Sprintf("metric:%s", metricName)).Err()
}

func (c *Client) GetMetric(ctx context.Context, metricName string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	val, err := c.client.Get(ctx, fmt.Sprintf("metric:%s", metricName)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
