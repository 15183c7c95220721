package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func makePacket(t *testing.T, seq uint64, msgType string, payload any) []byte {
	t.Helper()
	p, _ := json.Marshal(payload)
	b, err := json.Marshal(Packet{Seq: seq, Type: msgType, Payload: p})
	require.NoError(t, err)
	return b
}

// drain returns the packets queued on c so far.
func drain(t *testing.T, c *Client) []Packet {
	t.Helper()
	var out []Packet
	for {
		select {
		case raw := <-c.SendChan:
			var pkt Packet
			require.NoError(t, json.Unmarshal(raw, &pkt))
			out = append(out, pkt)
		default:
			return out
		}
	}
}

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	called := false
	r.On("ping", func(context.Context, *Client, json.RawMessage) error {
		called = true
		return nil
	})
	r.Dispatch(context.Background(), newClient(1, nil), makePacket(t, 1, "ping", nil))
	assert.True(t, called)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	c := newClient(1, nil)
	r.Dispatch(context.Background(), c, []byte("not json"))

	pkts := drain(t, c)
	require.Len(t, pkts, 1)
	assert.Equal(t, "error", pkts[0].Type)
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	called := false
	r.On("known", func(context.Context, *Client, json.RawMessage) error {
		called = true
		return nil
	})
	c := newClient(1, nil)
	r.Dispatch(context.Background(), c, makePacket(t, 1, "unknown", nil))
	assert.False(t, called)

	pkts := drain(t, c)
	require.Len(t, pkts, 1)
	assert.Contains(t, string(pkts[0].Payload), "unknown message type")
}

func TestRouter_Dispatch_AntiReplay(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	var calls int
	r.On("msg", func(context.Context, *Client, json.RawMessage) error {
		calls++
		return nil
	})
	c := newClient(1, nil)
	ctx := context.Background()

	r.Dispatch(ctx, c, makePacket(t, 5, "msg", nil))
	r.Dispatch(ctx, c, makePacket(t, 5, "msg", nil))
	r.Dispatch(ctx, c, makePacket(t, 3, "msg", nil))
	assert.Equal(t, 1, calls)

	r.Dispatch(ctx, c, makePacket(t, 6, "msg", nil))
	r.Dispatch(ctx, c, makePacket(t, 100, "msg", nil))
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(100), c.LastSeq)
}

func TestRouter_Dispatch_SeqZero_SkipsAntiReplay(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	var calls int
	r.On("msg", func(context.Context, *Client, json.RawMessage) error {
		calls++
		return nil
	})
	c := newClient(1, nil)
	c.LastSeq = 100

	r.Dispatch(context.Background(), c, makePacket(t, 0, "msg", nil))
	r.Dispatch(context.Background(), c, makePacket(t, 0, "msg", nil))
	assert.Equal(t, 2, calls)
}

func TestRouter_Dispatch_PayloadAndTrace(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	var got map[string]any
	var traceID string
	r.On("data", func(ctx context.Context, _ *Client, raw json.RawMessage) error {
		traceID = TraceIDFromCtx(ctx)
		return json.Unmarshal(raw, &got)
	})
	c := newClient(1, nil)
	r.Dispatch(context.Background(), c, makePacket(t, 1, "data", map[string]any{"key": "value"}))
	assert.Equal(t, "value", got["key"])
	assert.NotEmpty(t, traceID)
	assert.Equal(t, c.TraceID, traceID)
}

func TestRouter_HandlerErrorDoesNotPanic(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	r.On("err", func(context.Context, *Client, json.RawMessage) error { return assert.AnError })
	r.Dispatch(context.Background(), newClient(1, nil), makePacket(t, 1, "err", nil))
}

func TestRouter_ReplaceHandler(t *testing.T) {
	r := NewRouter(zaptest.NewLogger(t))
	var calls []string
	r.On("msg", func(context.Context, *Client, json.RawMessage) error {
		calls = append(calls, "first")
		return nil
	})
	r.On("msg", func(context.Context, *Client, json.RawMessage) error {
		calls = append(calls, "second")
		return nil
	})
	r.Dispatch(context.Background(), newClient(1, nil), makePacket(t, 1, "msg", nil))
	assert.Equal(t, []string{"second"}, calls)
}

func TestTraceIDFromCtx_Missing(t *testing.T) {
	assert.Equal(t, "", TraceIDFromCtx(context.Background()))
}

func TestClient_SendAfterClose(t *testing.T) {
	c := newClient(1, nil)
	c.Close()
	c.Close()
	c.SendJSON("battle_state", map[string]int{"turn": 1})
	assert.True(t, c.IsClosed())
	assert.Empty(t, drain(t, c))
}

func TestHub_Displace(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	first := newClient(7, nil)
	second := newClient(7, nil)

	h.Register(first)
	h.Register(second)
	assert.True(t, first.IsClosed())
	assert.Same(t, second, h.Get(7))

	h.Unregister(first)
	assert.Equal(t, 1, h.Count(), "stale unregister keeps the newer client")
	h.Unregister(second)
	assert.Zero(t, h.Count())

	h.Register(newClient(8, nil))
	h.CloseAll()
	assert.Zero(t, h.Count())
}
