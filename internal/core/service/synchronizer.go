package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/port"
)

var (
	ErrAlreadyStarted = errors.New("synchronizer already started")
	ErrNotStarted     = errors.New("synchronizer not started")
)

const DefaultSettleDelay = 100 * time.Millisecond

type SyncState int32

const (
	SyncIdle SyncState = iota
	SyncSyncing
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// RemoteApplier installs the final cart state carried by a peer message.
type RemoteApplier interface {
	ReplaceLines(lines []domain.CartLine)
}

type SynchronizerConfig struct {
	TabID      string
	Applier    RemoteApplier
	Bus        port.Broadcaster    // nil when no broadcast medium is available
	Slot       port.CartRepository // fallback write target
	Watcher    port.StorageWatcher // storage-change signal, used when Bus is nil
	Topic      string
	StorageKey string

	// StorePersists is set when the applier's own mutations already write
	// Slot under StorageKey, so that write is the storage signal.
	StorePersists bool

	SettleDelay       time.Duration
	IgnoreOwnMessages bool
	Logger            *zap.Logger
}

// Synchronizer propagates local cart changes to peer tabs and applies theirs.
// Concurrent edits resolve last-writer-wins; there is no merge.
type Synchronizer struct {
	cfg    SynchronizerConfig
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     SyncState
	gen       uint64
	timer     *time.Timer
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	subs      []port.Subscription
	listeners []func(SyncState)

	wg sync.WaitGroup
}

func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		cfg:    cfg,
		logger: logger.With(zap.String("tab_id", cfg.TabID)),
		now:    time.Now,
	}
}

func (s *Synchronizer) TabID() string {
	return s.cfg.TabID
}

func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn for Idle/Syncing transitions.
func (s *Synchronizer) OnStateChange(fn func(SyncState)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Start attaches the listeners. It may be called once per synchronizer.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.Background())

	var subs []port.Subscription
	switch {
	case s.cfg.Bus != nil:
		sub, err := s.cfg.Bus.Subscribe(ctx, s.cfg.Topic)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", s.cfg.Topic, err)
		}
		subs = append(subs, sub)
		s.consume(runCtx, sub, s.handleEnvelope)
	case s.cfg.Watcher != nil:
		sub, err := s.cfg.Watcher.WatchCart(ctx, s.cfg.StorageKey)
		if err != nil {
			cancel()
			return fmt.Errorf("watch %s: %w", s.cfg.StorageKey, err)
		}
		subs = append(subs, sub)
		s.consume(runCtx, sub, s.handleStorageChange)
	default:
		s.logger.Warn("no broadcast medium or storage watcher, cross-tab sync disabled")
	}

	s.started = true
	s.cancel = cancel
	s.subs = subs
	s.logger.Info("cross-tab sync started", zap.String("topic", s.cfg.Topic), zap.Bool("broadcast", s.cfg.Bus != nil))
	return nil
}

// Stop tears down listeners and the settle timer. Extra calls are no-ops.
func (s *Synchronizer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()
	subs := s.subs
	s.subs = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = SyncIdle
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	s.logger.Info("cross-tab sync stopped")
	return errors.Join(errs...)
}

// Notify broadcasts the post-mutation state to peers. Without a working
// broadcast medium the persisted slot is rewritten so watchers still see it,
// unless the store has written it already.
func (s *Synchronizer) Notify(ctx context.Context, snapshot domain.Snapshot) error {
	if s.cfg.Bus == nil {
		return s.writeFallback(ctx, snapshot)
	}

	env := domain.NewCartUpdate(s.cfg.TabID, snapshot, s.now().UnixMilli())
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.cfg.Bus.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("broadcast failed, falling back to storage signal", zap.Error(err))
		return s.writeFallback(ctx, snapshot)
	}
	return nil
}

func (s *Synchronizer) writeFallback(ctx context.Context, snapshot domain.Snapshot) error {
	if s.cfg.Slot == nil || s.cfg.StorePersists {
		return nil
	}
	if err := s.cfg.Slot.SaveCart(ctx, s.cfg.StorageKey, snapshot.WithOrigin(s.cfg.TabID)); err != nil {
		return fmt.Errorf("fallback write %s: %w", s.cfg.StorageKey, err)
	}
	return nil
}

func (s *Synchronizer) consume(ctx context.Context, sub port.Subscription, handle func([]byte)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}
				handle(payload)
			}
		}
	}()
}

func (s *Synchronizer) handleEnvelope(payload []byte) {
	var env domain.SyncEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Warn("dropping undecodable sync message", zap.Error(err))
		return
	}
	if err := env.Validate(); err != nil {
		s.logger.Debug("dropping sync message", zap.Error(err))
		return
	}
	if s.cfg.IgnoreOwnMessages && env.TabID == s.cfg.TabID {
		return
	}
	s.apply(env.Items, env.TabID)
}

func (s *Synchronizer) handleStorageChange(payload []byte) {
	snap, err := domain.DecodePersisted(payload)
	if err != nil {
		s.logger.Warn("dropping unreadable storage change", zap.Error(err))
		return
	}
	// A tab never reacts to its own storage writes; its state is already newer.
	if s.cfg.TabID != "" && snap.Origin() == s.cfg.TabID {
		return
	}
	s.apply(snap.Lines(), snap.Origin())
}

func (s *Synchronizer) apply(lines []domain.CartLine, from string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.cfg.Applier.ReplaceLines(lines)
	s.logger.Debug("applied peer cart", zap.String("from", from), zap.Int("lines", len(lines)))
	s.markSyncing()
}

// markSyncing enters Syncing and (re)arms the settle timer back to Idle.
func (s *Synchronizer) markSyncing() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.SettleDelay, func() { s.settle(gen) })
	changed := s.state != SyncSyncing
	s.state = SyncSyncing
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		emit(listeners, SyncSyncing)
	}
}

func (s *Synchronizer) settle(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen || s.state == SyncIdle {
		s.mu.Unlock()
		return
	}
	s.state = SyncIdle
	s.timer = nil
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, SyncIdle)
}

func emit(listeners []func(SyncState), state SyncState) {
	for _, fn := range listeners {
		fn(state)
	}
}
