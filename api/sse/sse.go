package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/game/encounter"
	mw "github.com/kasuganosora/monsterbattle/middleware"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler streams battle events as server-sent events.
type Handler struct {
	svc       *encounter.Service
	keepalive time.Duration
	logger    *zap.Logger
}

func NewHandler(svc *encounter.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, keepalive: keepaliveInterval, logger: logger}
}

// ServePlayer handles GET /api/battles/stream. It follows every battle of
// the authenticated player, including ones started after connecting.
func (h *Handler) ServePlayer(c *gin.Context) {
	pid := mw.GetPlayerID(c)
	msgs, unsub, err := h.svc.SubscribePlayer(c.Request.Context(), pid)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("player_id", pid), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream unavailable"})
		return
	}
	defer unsub()
	h.stream(c, msgs)
}

// ServeSession handles GET /api/battles/:id/stream for spectators.
func (h *Handler) ServeSession(c *gin.Context) {
	msgs, unsub, err := h.svc.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer unsub()
	h.stream(c, msgs)
}

func (h *Handler) stream(c *gin.Context, msgs <-chan *cache.Message) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: battle\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()
		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
