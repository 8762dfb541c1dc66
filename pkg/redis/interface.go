package redis

import (
	"context"
	"time"
)

// ClientInterface is the Redis surface the cache layer consumes.
type ClientInterface interface {
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

var _ ClientInterface = (*Client)(nil)
