package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rl1809/cart-sync/internal/port"
)

const defaultBufferSize = 64

// MemoryBroadcaster is an in-process topic bus. A slow subscriber loses its
// oldest queued messages instead of blocking publishers, so the latest
// message on a topic is always delivered.
type MemoryBroadcaster struct {
	mu      sync.RWMutex
	topics  map[string]map[*memorySubscription]struct{}
	buffer  int
	dropped atomic.Int64
}

func NewMemoryBroadcaster(buffer int) *MemoryBroadcaster {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &MemoryBroadcaster{
		topics: make(map[string]map[*memorySubscription]struct{}),
		buffer: buffer,
	}
}

func (b *MemoryBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		b.deliver(sub, msg)
	}
	return nil
}

// deliver enqueues msg, evicting the oldest queued messages while the buffer is full.
func (b *MemoryBroadcaster) deliver(sub *memorySubscription, msg []byte) {
	for {
		select {
		case sub.ch <- msg:
			return
		default:
		}
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
	}
}

func (b *MemoryBroadcaster) Subscribe(ctx context.Context, topic string) (port.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		bus:   b,
		topic: topic,
		ch:    make(chan []byte, b.buffer),
	}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Dropped reports how many queued messages were evicted from full subscriber buffers.
func (b *MemoryBroadcaster) Dropped() int64 {
	return b.dropped.Load()
}

func (b *MemoryBroadcaster) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	close(sub.ch)
}

type memorySubscription struct {
	bus   *MemoryBroadcaster
	topic string
	ch    chan []byte
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.bus.remove(s)
	return nil
}
