package redisstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/local-cart/internal/storage"
	"github.com/redis/go-redis/v9"
)

type Option func(*RedisStorage)

// WithTTL expires snapshots after base plus up to four minutes of jitter.
// The default keeps snapshots forever.
func WithTTL(base time.Duration) Option {
	return func(r *RedisStorage) {
		r.baseTTL = base
	}
}

// WithPrefix namespaces every key, e.g. "cart:" gives "cart:@GoMarketplace:cart".
func WithPrefix(prefix string) Option {
	return func(r *RedisStorage) {
		r.prefix = prefix
	}
}

func NewRedisStorage(client *redis.Client, opts ...Option) *RedisStorage {
	r := &RedisStorage{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type RedisStorage struct {
	client  *redis.Client
	baseTTL time.Duration
	prefix  string
}

func (r *RedisStorage) GetItem(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

func (r *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) ttl() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}
