package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opuscart/basket/internal/basket"
)

// Redis is the session-backed storage variant: one serialized basket blob
// per session id under a configurable key prefix. A missing key loads as
// an empty basket, never an error.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisOption configures the Redis backend.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the default "basket" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.keyPrefix = prefix }
}

// WithTTL expires stored baskets after the given duration. Zero keeps them
// until the session store evicts them.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis creates a Redis-backed storage using the given client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		keyPrefix: "basket",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(sub basket.Subject) string {
	return fmt.Sprintf("%s:%s", r.keyPrefix, sub.SessionID())
}

func (r *Redis) Load(ctx context.Context, sub basket.Subject) ([]*basket.Item, error) {
	data, err := r.client.Get(ctx, r.key(sub)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return basket.DecodeItems(data)
}

func (r *Redis) Save(ctx context.Context, sub basket.Subject, items []*basket.Item) error {
	data, err := basket.EncodeItems(items)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(sub), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
