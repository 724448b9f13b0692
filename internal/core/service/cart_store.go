package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/port"
)

// ChangeNotifier is told about every local mutation after it has been persisted.
type ChangeNotifier interface {
	Notify(ctx context.Context, snapshot domain.Snapshot) error
}

type CartStore struct {
	repo   port.CartRepository
	key    string
	origin string
	logger *zap.Logger

	// writeMu serializes every state change end to end, local mutations with
	// their persist and notify as well as remote applies, so each one lands on
	// the state left by the previous one and subscribers see them in order.
	writeMu sync.Mutex

	mu       sync.RWMutex
	lines    []domain.CartLine
	notifier ChangeNotifier
	subs     map[int]func(domain.Snapshot)
	nextSub  int
}

func NewCartStore(repo port.CartRepository, key string, logger *zap.Logger) *CartStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartStore{
		repo:   repo,
		key:    key,
		logger: logger,
		subs:   make(map[int]func(domain.Snapshot)),
	}
}

// SetOrigin tags every persisted write with tabID.
func (s *CartStore) SetOrigin(tabID string) {
	s.writeMu.Lock()
	s.origin = tabID
	s.writeMu.Unlock()
}

func (s *CartStore) SetNotifier(n ChangeNotifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Hydrate replaces the in-memory cart with the persisted slot, if any.
func (s *CartStore) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snap, ok, err := s.repo.LoadCart(ctx, s.key)
	if err != nil {
		return fmt.Errorf("hydrate cart %s: %w", s.key, err)
	}
	if !ok {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.lines = snap.Lines()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// Subscribe registers fn for every state change, local or remote. Calls
// arrive in the order the changes were applied, possibly from the
// synchronizer goroutine. fn must not mutate the store.
func (s *CartStore) Subscribe(fn func(domain.Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *CartStore) AddLine(ctx context.Context, p domain.Product) {
	s.mutate(ctx, "add", func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		next := make([]domain.CartLine, 0, len(lines)+1)
		found := false
		for _, l := range lines {
			if l.ID == p.ID {
				l.Quantity++
				found = true
			}
			next = append(next, l)
		}
		if !found {
			next = append(next, domain.NewLine(p))
		}
		return next, true
	})
}

func (s *CartStore) RemoveLine(ctx context.Context, id string) {
	s.mutate(ctx, "remove", func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		return without(lines, id)
	})
}

// SetQuantity replaces the quantity of line id; quantity <= 0 removes the line.
func (s *CartStore) SetQuantity(ctx context.Context, id string, quantity int) {
	if quantity <= 0 {
		s.RemoveLine(ctx, id)
		return
	}
	s.mutate(ctx, "set_quantity", func(lines []domain.CartLine) ([]domain.CartLine, bool) {
		next := make([]domain.CartLine, len(lines))
		found := false
		for i, l := range lines {
			if l.ID == id {
				l.Quantity = quantity
				found = true
			}
			next[i] = l
		}
		return next, found
	})
}

func (s *CartStore) Clear(ctx context.Context) {
	s.mutate(ctx, "clear", func([]domain.CartLine) ([]domain.CartLine, bool) {
		return nil, true
	})
}

// ReplaceLines installs state received from a peer tab. It neither persists
// nor notifies: the peer already did both.
func (s *CartStore) ReplaceLines(lines []domain.CartLine) {
	snap := domain.NewSnapshot(lines)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.lines = snap.Lines()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *CartStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.NewSnapshot(s.lines)
}

func (s *CartStore) TotalItems() int {
	return s.Snapshot().TotalItems()
}

func (s *CartStore) TotalPrice() decimal.Decimal {
	return s.Snapshot().TotalPrice()
}

func (s *CartStore) mutate(ctx context.Context, op string, fn func([]domain.CartLine) ([]domain.CartLine, bool)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next, changed := fn(s.lines)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.lines = next
	snap := domain.NewSnapshot(next).WithOrigin(s.origin)
	notifier := s.notifier
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveCart(ctx, s.key, snap); err != nil {
			s.logger.Warn("failed to persist cart", zap.String("op", op), zap.String("key", s.key), zap.Error(err))
		}
	}
	if notifier != nil {
		if err := notifier.Notify(ctx, snap); err != nil {
			s.logger.Warn("failed to broadcast cart", zap.String("op", op), zap.Error(err))
		}
	}

	s.logger.Debug("cart updated", zap.String("op", op), zap.Int("lines", snap.Len()), zap.Int("total_items", snap.TotalItems()))
	s.publish(snap)
}

func (s *CartStore) publish(snap domain.Snapshot) {
	s.mu.RLock()
	fns := make([]func(domain.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func without(lines []domain.CartLine, id string) ([]domain.CartLine, bool) {
	next := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ID != id {
			next = append(next, l)
		}
	}
	return next, len(next) != len(lines)
}
