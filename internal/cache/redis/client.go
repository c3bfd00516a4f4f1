package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	prefix string
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client, prefix: "factcheck:"}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client, prefix: "factcheck:"}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}

	logger.Debug("Cache entry stored", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// GetJSON reports false with a nil error when key is absent.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache key: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	logger.Debug("Cache hit", zap.String("key", key))
	return true, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
