package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/game/encounter"
	mw "github.com/kasuganosora/monsterbattle/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /api/ws. It must sit behind mw.Auth.
type Handler struct {
	svc      *encounter.Service
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket Handler. sec.AllowedOrigins controls which
// origins may connect; an empty list permits all of them.
func NewHandler(svc *encounter.Service, sec config.SecurityConfig, hub *Hub, router *Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := sec.AllowedOrigins
	return &Handler{
		svc:    svc,
		hub:    hub,
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowed {
					if o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

func (h *Handler) ServeWS(c *gin.Context) {
	pid := mw.GetPlayerID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(pid, conn, h.logger)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, unsub, err := h.svc.SubscribePlayer(ctx, pid)
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.Int64("player_id", pid), zap.Error(err))
		client.Close()
		h.hub.Unregister(client)
		return
	}
	defer unsub()
	go h.forward(client, msgs)

	// A reconnecting player gets the current decision point straight away.
	if st, err := h.svc.StateFor(pid); err == nil {
		client.SendJSON("battle_state", st)
	}

	h.logger.Info("player connected", zap.Int64("player_id", pid))
	h.readPump(ctx, client)
}

// forward relays published battle events to the client until either side
// goes away.
func (h *Handler) forward(c *Client, msgs <-chan *cache.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in ws forward",
				zap.Int64("player_id", c.PlayerID),
				zap.Any("recover", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.Send(&Packet{Type: "battle_event", Payload: json.RawMessage(msg.Payload)})
		case <-c.Done:
			return
		}
	}
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	defer h.disconnect(c)

	c.setReadDeadline()
	c.Conn.SetPongHandler(func(string) error {
		c.setReadDeadline()
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.Int64("player_id", c.PlayerID), zap.Error(err))
			}
			return
		}
		c.setReadDeadline()
		h.router.Dispatch(ctx, c, raw)
	}
}

// disconnect leaves any battle running; the decision timeout or a later
// reconnect settles it.
func (h *Handler) disconnect(c *Client) {
	c.Close()
	h.hub.Unregister(c)
	h.logger.Info("player disconnected", zap.Int64("player_id", c.PlayerID))
}
