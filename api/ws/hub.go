package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks the live connection of each player. A second connection for
// the same player displaces the first.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[int64]*Client), logger: logger}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[c.PlayerID]; ok && old != c {
		old.Close()
		h.logger.Info("duplicate connection displaced", zap.Int64("player_id", c.PlayerID))
	}
	h.clients[c.PlayerID] = c
}

// Unregister removes c unless it was already displaced by a newer client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.PlayerID] == c {
		delete(h.clients, c.PlayerID)
	}
}

func (h *Hub) Get(playerID int64) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[playerID]
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}
