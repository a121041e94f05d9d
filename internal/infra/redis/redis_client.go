package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jmobrien1/mdraft/internal/config"
)

type RedisClient interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	LPush(ctx context.Context, key string, values ...interface{}) error
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	Close() error
}

var _ RedisClient = (*redClient)(nil)

type redClient struct {
	cli *redis.Client
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redClient, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redClient{cli: c}, nil
}

func (c *redClient) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *redClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.cli.Set(ctx, key, value, expiration).Err()
}

func (c *redClient) Get(ctx context.Context, key string) (string, error) {
	return c.cli.Get(ctx, key).Result()
}

func (c *redClient) Incr(ctx context.Context, key string) (int64, error) {
	return c.cli.Incr(ctx, key).Result()
}

func (c *redClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.cli.Expire(ctx, key, expiration).Err()
}

func (c *redClient) Del(ctx context.Context, keys ...string) error {
	return c.cli.Del(ctx, keys...).Err()
}

func (c *redClient) LPush(ctx context.Context, key string, values ...interface{}) error {
	return c.cli.LPush(ctx, key, values...).Err()
}

// BRPop blocks up to timeout across keys; redis checks the keys in order, so
// the caller's key order is the queue priority order.
func (c *redClient) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error) {
	return c.cli.BRPop(ctx, timeout, keys...).Result()
}

func (c *redClient) LLen(ctx context.Context, key string) (int64, error) {
	return c.cli.LLen(ctx, key).Result()
}

func (c *redClient) Close() error { return c.cli.Close() }

// IsNil reports the go-redis nil reply (empty BRPop / missing key).
func IsNil(err error) bool { return err == redis.Nil }
