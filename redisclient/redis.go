package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with the handful of operations the Score
// Store and its post-award sidecar need.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

// Raw exposes the underlying go-redis client for packages that need the
// full command surface (hashes, sorted sets, pipelines).
func (r *Client) Raw() *redis.Client {
	return r.c
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

func (r *Client) Close() error {
	return r.c.Close()
}
