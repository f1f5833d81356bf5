// Package cache provides key-value backends for caching embeddings.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nickcecere/qdrant-mcp/internal/config"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// KV is a byte-oriented key-value store with per-key expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close()
}

// New creates the backend selected by cfg.Backend. It returns nil, nil for
// the "none" backend.
func New(cfg config.CacheConfig) (KV, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.MaxEntries), nil
	case "redis":
		return NewRedis(RedisConfig{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", config.ErrInvalid, cfg.Backend)
	}
}
