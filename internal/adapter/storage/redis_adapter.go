package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/cart-sync/internal/adapter/broadcast"
	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/port"
)

const (
	cartKeyPrefix     = "cart:"
	storageChangedKey = "cartsync:storage-changed:"
	DefaultCartTTL    = 30 * 24 * time.Hour
)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) LoadCart(ctx context.Context, key string) (domain.Snapshot, bool, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("get cart: %w", err)
	}

	snap, err := domain.DecodePersisted(data)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snap, true, nil
}

// SaveCart writes the slot and publishes the new value in one transaction so
// watchers never observe a signal for a value that was not stored.
func (r *RedisAdapter) SaveCart(ctx context.Context, key string, snapshot domain.Snapshot) error {
	data, err := domain.EncodePersisted(snapshot)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, cartKeyPrefix+key, data, r.ttl)
		pipe.Publish(ctx, storageChangedKey+key, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) DeleteCart(ctx context.Context, key string) error {
	empty, err := domain.EncodePersisted(domain.NewSnapshot(nil))
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cartKeyPrefix+key)
		pipe.Publish(ctx, storageChangedKey+key, empty)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) WatchCart(ctx context.Context, key string) (port.Subscription, error) {
	return broadcast.Listen(ctx, r.client, storageChangedKey+key)
}
