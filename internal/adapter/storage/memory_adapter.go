package storage

import (
	"context"
	"sync"

	"github.com/rl1809/cart-sync/internal/adapter/broadcast"
	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/port"
)

// MemoryAdapter keeps cart slots in process, for tabs that share one program.
type MemoryAdapter struct {
	mu      sync.RWMutex
	slots   map[string][]byte
	changes *broadcast.MemoryBroadcaster
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		slots:   make(map[string][]byte),
		changes: broadcast.NewMemoryBroadcaster(0),
	}
}

func (m *MemoryAdapter) LoadCart(ctx context.Context, key string) (domain.Snapshot, bool, error) {
	m.mu.RLock()
	data, ok := m.slots[key]
	m.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, false, nil
	}

	snap, err := domain.DecodePersisted(data)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (m *MemoryAdapter) SaveCart(ctx context.Context, key string, snapshot domain.Snapshot) error {
	data, err := domain.EncodePersisted(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.slots[key] = data
	m.mu.Unlock()

	return m.changes.Publish(ctx, key, data)
}

func (m *MemoryAdapter) DeleteCart(ctx context.Context, key string) error {
	empty, err := domain.EncodePersisted(domain.NewSnapshot(nil))
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.slots, key)
	m.mu.Unlock()

	return m.changes.Publish(ctx, key, empty)
}

func (m *MemoryAdapter) WatchCart(ctx context.Context, key string) (port.Subscription, error) {
	return m.changes.Subscribe(ctx, key)
}

// Raw returns the stored bytes for key, as a browser would see the cookie.
func (m *MemoryAdapter) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.slots[key]
	return data, ok
}
