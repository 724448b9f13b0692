package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/cart-sync/internal/port"
)

const topicPrefix = "cartsync:topic:"

type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (r *RedisBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, topicPrefix+topic, payload).Err()
}

func (r *RedisBroadcaster) Subscribe(ctx context.Context, topic string) (port.Subscription, error) {
	return Listen(ctx, r.client, topicPrefix+topic)
}

// Listen subscribes to a raw Redis channel and waits for the confirmation so
// no message published after it returns is missed.
func Listen(ctx context.Context, client *redis.Client, channel string) (port.Subscription, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return newRedisSubscription(pubsub), nil
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	messages chan []byte
	done     chan struct{}
	once     sync.Once
	closeErr error
}

func newRedisSubscription(pubsub *redis.PubSub) *redisSubscription {
	s := &redisSubscription{
		pubsub:   pubsub,
		messages: make(chan []byte, defaultBufferSize),
		done:     make(chan struct{}),
	}
	go s.pump(pubsub.Channel())
	return s
}

func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.messages)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.messages <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}
