package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisConfig holds connection parameters for a Redis cache.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Redis implements KV via rueidis.
type Redis struct {
	client rueidis.Client
}

// NewRedis connects to Redis.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 || cfg.Addrs[0] == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client rueidis.Client) *Redis {
	return &Redis{client: client}
}

// Get retrieves a value by key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := r.client.B().Get().Key(key).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores a value, expiring it after ttl when ttl is positive.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *Redis) Close() {
	r.client.Close()
}
