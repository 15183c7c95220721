package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *LocalMessage) *LocalMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestPubSubBasic(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "battle:abc")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "battle:abc", "hello"))
	msg := receive(t, ch)
	assert.Equal(t, "battle:abc", msg.Channel)
	assert.Equal(t, "hello", msg.Payload)
}

func TestPubSubUnsubscribe(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "a", "b")
	require.NoError(t, err)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
	assert.NoError(t, ps.Publish(ctx, "a", "msg"))
	assert.Empty(t, ps.subs)
}

func TestPubSubContextCancel(t *testing.T) {
	ps := NewPubSub(16)
	ctx, stop := context.WithCancel(context.Background())
	ch, _, err := ps.Subscribe(ctx, "battle:x")
	require.NoError(t, err)

	stop()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on context cancel")
	}
}

func TestPubSubMultipleSubscribers(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, _ := ps.Subscribe(ctx, "broadcast")
	ch2, cancel2, _ := ps.Subscribe(ctx, "broadcast")
	defer cancel1()
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "broadcast", "world"))
	assert.Equal(t, "world", receive(t, ch1).Payload)
	assert.Equal(t, "world", receive(t, ch2).Payload)
}

func TestPubSubFullBufferDrops(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()
	ch, cancel, _ := ps.Subscribe(ctx, "c")
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "c", "1"))
	require.NoError(t, ps.Publish(ctx, "c", "2"))
	assert.Equal(t, int64(1), ps.Dropped())
	assert.Equal(t, "1", receive(t, ch).Payload)
}
