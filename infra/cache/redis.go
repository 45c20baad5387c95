package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/dukapi/infra/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps go-redis. A nil *Client is valid and behaves as an empty cache
// that never deduplicates, so callers fall back to their database checks.
type Client struct {
	*redis.Client
}

// New creates a client from cfg. Returns nil when no URL is configured.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Wrap adapts an existing go-redis client
func Wrap(c *redis.Client) *Client {
	if c == nil {
		return nil
	}
	return &Client{Client: c}
}

// Enabled reports whether a server is behind the client
func (c *Client) Enabled() bool {
	return c != nil && c.Client != nil
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("redis not configured")
	}
	return c.Ping(ctx).Err()
}

// Claim sets key only if absent. It reports true when this caller now owns the
// key. Without a server every claim succeeds.
func (c *Client) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !c.Enabled() {
		return true, nil
	}
	ok, err := c.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return true, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so that a later attempt can retry
func (c *Client) Release(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}
	_ = c.Del(ctx, key).Err()
}

// GetString returns the value and whether it was present
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	v, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetString stores a value with a ttl
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	return c.Set(ctx, key, value, ttl).Err()
}

// Hit counts a request in the fixed window identified by key and returns the
// count so far together with the time left in the window.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if !c.Enabled() {
		return 0, 0, errors.New("redis not configured")
	}

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate window %s: %w", key, err)
	}

	left := ttl.Val()
	if left < 0 {
		left = window
	}
	return incr.Val(), left, nil
}
