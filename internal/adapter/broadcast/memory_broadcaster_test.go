package broadcast

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemoryBroadcaster_FanOut(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBroadcaster(4)

	a, err := bus.Subscribe(ctx, "cart-sync")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "cart-sync")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "cart-sync", []byte("hello")))

	assert.Equal(t, "hello", string(receive(t, a.Messages())))
	assert.Equal(t, "hello", string(receive(t, b.Messages())))
	select {
	case msg := <-other.Messages():
		t.Fatalf("unexpected message on other topic: %s", msg)
	default:
	}
}

func TestMemoryBroadcaster_CopiesPayload(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBroadcaster(4)

	sub, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	payload := []byte("abc")
	require.NoError(t, bus.Publish(ctx, "t", payload))
	payload[0] = 'z'

	assert.Equal(t, "abc", string(receive(t, sub.Messages())))
}

func TestMemoryBroadcaster_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBroadcaster(2)

	sub, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "t", []byte("1")))
	require.NoError(t, bus.Publish(ctx, "t", []byte("2")))
	require.NoError(t, bus.Publish(ctx, "t", []byte("3")))

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, "2", string(receive(t, sub.Messages())))
	assert.Equal(t, "3", string(receive(t, sub.Messages())))
}

func TestMemoryBroadcaster_LatestSurvivesBurst(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBroadcaster(4)

	sub, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	const n = 1000
	for i := 1; i <= n; i++ {
		require.NoError(t, bus.Publish(ctx, "t", []byte(strconv.Itoa(i))))
	}

	var last string
	for len(sub.Messages()) > 0 {
		last = string(receive(t, sub.Messages()))
	}
	assert.Equal(t, strconv.Itoa(n), last)
	assert.Equal(t, int64(n-4), bus.Dropped())
}

func TestMemoryBroadcaster_CloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBroadcaster(4)

	sub, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	require.NoError(t, bus.Publish(ctx, "t", []byte("late")))
}

func TestMemoryBroadcaster_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus := NewMemoryBroadcaster(4)

	assert.Error(t, bus.Publish(ctx, "t", []byte("x")))
	_, err := bus.Subscribe(ctx, "t")
	assert.Error(t, err)
}
