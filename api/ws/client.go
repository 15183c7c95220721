package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// Packet is the WS message envelope in both directions.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one player's WebSocket connection.
type Client struct {
	PlayerID int64
	Conn     *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	closeOnce sync.Once
	logger    *zap.Logger
}

// NewClient wraps conn and starts its write goroutine.
func NewClient(playerID int64, conn *websocket.Conn, logger *zap.Logger) *Client {
	c := newClient(playerID, logger)
	c.Conn = conn
	go c.writePump()
	return c
}

func newClient(playerID int64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		PlayerID: playerID,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
}

// writePump drains SendChan and pings the peer so dead connections are
// noticed by the read deadline.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Conn.Close()
	for {
		select {
		case data := <-c.SendChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error", zap.Int64("player_id", c.PlayerID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done:
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it without blocking. Packets are dropped when
// the client is closed or its buffer is full.
func (c *Client) Send(pkt *Packet) {
	if c.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case c.SendChan <- data:
	case <-c.Done:
	default:
		if !c.IsClosed() {
			c.logger.Warn("send channel full, dropping packet",
				zap.Int64("player_id", c.PlayerID),
				zap.String("type", pkt.Type))
		}
	}
}

// SendJSON marshals v as the payload of a msgType packet.
func (c *Client) SendJSON(msgType string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encode ws payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	c.Send(&Packet{Type: msgType, Payload: payload})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

func (c *Client) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

func (c *Client) setReadDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
