package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/port"
)

type TabConfig struct {
	Slot    port.CartRepository
	Watcher port.StorageWatcher
	Bus     port.Broadcaster

	StorageKey        string
	Topic             string
	SettleDelay       time.Duration
	IgnoreOwnMessages bool
	Logger            *zap.Logger
}

// Tab is one browsing context: a cart store wired to its synchronizer.
type Tab struct {
	ID    string
	Store *CartStore
	Sync  *Synchronizer
}

// OpenTab rehydrates the persisted cart and starts cross-tab sync. The caller
// owns the returned tab and must Close it.
func OpenTab(ctx context.Context, cfg TabConfig) (*Tab, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	tabLogger := logger.With(zap.String("tab_id", id))

	store := NewCartStore(cfg.Slot, cfg.StorageKey, tabLogger)
	store.SetOrigin(id)
	if err := store.Hydrate(ctx); err != nil {
		tabLogger.Warn("starting with an empty cart", zap.Error(err))
	}

	sync := NewSynchronizer(SynchronizerConfig{
		TabID:             id,
		Applier:           store,
		Bus:               cfg.Bus,
		Slot:              cfg.Slot,
		Watcher:           cfg.Watcher,
		Topic:             cfg.Topic,
		StorageKey:        cfg.StorageKey,
		StorePersists:     cfg.Slot != nil,
		SettleDelay:       cfg.SettleDelay,
		IgnoreOwnMessages: cfg.IgnoreOwnMessages,
		Logger:            logger,
	})
	store.SetNotifier(sync)

	if err := sync.Start(ctx); err != nil {
		return nil, err
	}
	return &Tab{ID: id, Store: store, Sync: sync}, nil
}

func (t *Tab) Close() error {
	return t.Sync.Stop()
}
