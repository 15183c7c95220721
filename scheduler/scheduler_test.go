package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddTicker_Fires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddDelay_FiresOnceAndForgets(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var count int32
	require.True(t, s.AddDelay("once", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	}))
	assert.True(t, s.Has("once"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.False(t, s.Has("once"), "fired delay should be untracked")
}

func TestAddDelay_ReplaceCancelsOld(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var first, second int32
	s.AddDelay("switch", 30*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	s.AddDelay("switch", 30*time.Millisecond, func() { atomic.AddInt32(&second, 1) })

	time.Sleep(90 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}

func TestRemove(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var count int32
	s.AddDelay("d", 20*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.Remove("d")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestStop_CancelsEverything(t *testing.T) {
	s := New(nil)

	var count int32
	s.AddDelay("a", 20*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.AddDelay("b", 25*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.AddTicker("t", 10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	assert.Equal(t, []string{"a", "b", "t"}, s.Pending())

	s.Stop()
	assert.Empty(t, s.Pending())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))

	assert.False(t, s.AddDelay("late", time.Millisecond, func() {}))
	s.Stop() // idempotent
}

func TestPanicRecovered(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var after int32
	s.AddDelay("boom", 5*time.Millisecond, func() { panic("boom") })
	s.AddDelay("ok", 20*time.Millisecond, func() { atomic.AddInt32(&after, 1) })
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&after))
}
