package counter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the last issued installation id
const DefaultRedisKey = "fieldsurvey:next_installation_id"

// RedisCounter issues ids with INCR on a single key
type RedisCounter struct {
	client *redis.Client
	key    string
}

// NewRedisCounter connects to url and seeds the key at zero if it is missing
func NewRedisCounter(url, key string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return NewRedisCounterWithClient(context.Background(), redis.NewClient(opts), key)
}

// NewRedisCounterWithClient wraps an existing client
func NewRedisCounterWithClient(ctx context.Context, client *redis.Client, key string) (*RedisCounter, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if err := client.SetNX(ctx, key, 0, 0).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to seed counter: %w", err)
	}
	return &RedisCounter{client: client, key: key}, nil
}

// Next returns the next installation id
func (c *RedisCounter) Next(ctx context.Context) (int64, error) {
	id, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment installation counter: %w", err)
	}
	return id, nil
}

// Close closes the Redis client
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
