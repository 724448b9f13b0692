package port

import (
	"context"

	"github.com/rl1809/cart-sync/internal/core/domain"
)

type CartRepository interface {
	// LoadCart reads the persisted cart slot; ok is false when the slot is empty
	LoadCart(ctx context.Context, key string) (snapshot domain.Snapshot, ok bool, err error)

	// SaveCart overwrites the slot and emits a storage-change signal to watchers
	SaveCart(ctx context.Context, key string, snapshot domain.Snapshot) error

	// DeleteCart removes the slot
	DeleteCart(ctx context.Context, key string) error
}

type StorageWatcher interface {
	// WatchCart delivers the raw persisted value every time the slot is written
	WatchCart(ctx context.Context, key string) (Subscription, error)
}
