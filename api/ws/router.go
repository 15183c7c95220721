package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

// On registers fn for msgType, replacing any earlier handler.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw, rejects replayed sequence numbers and runs the
// handler. Calls for one client must not overlap.
func (r *Router) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.Int64("player_id", c.PlayerID), zap.Error(err))
		sendError(c, "malformed packet")
		return
	}

	// Seq 0 opts out of replay tracking.
	if pkt.Seq != 0 && pkt.Seq <= c.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("player_id", c.PlayerID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", c.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		c.LastSeq = pkt.Seq
	}

	c.TraceID = uuid.NewString()
	ctx = context.WithValue(ctx, ctxKeyTraceID{}, c.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("player_id", c.PlayerID))
		sendError(c, "unknown message type: "+pkt.Type)
		return
	}

	if err := fn(ctx, c, pkt.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("player_id", c.PlayerID),
			zap.String("trace_id", c.TraceID),
			zap.Error(err))
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}

func sendError(c *Client, msg string) {
	c.SendJSON("error", map[string]string{"message": msg})
}
