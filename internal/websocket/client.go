package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the connection may sit idle before the peer
	// must answer a ping; pingPeriod stays under it so a healthy peer
	// always has a ping in flight.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames only carry subscribe/unsubscribe requests, so
	// anything large is garbage.
	maxInboundBytes = 512
)

// Client is one browser connection attached to the hub. All outbound
// traffic goes through the buffered send channel; the two pumps own the
// underlying connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: logger,
	}
}

// ReadPump drains inbound frames until the peer goes away, feeding
// subscription requests to the hub. It is the sole reader on the
// connection and unregisters the client on exit.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.logger != nil {
				c.logger.Error("websocket read failed", slog.Any("error", err))
			}
			return
		}
		c.handleMessage(frame)
	}
}

// WritePump is the sole writer on the connection. It forwards hub
// broadcasts from the send channel and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped us.
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.AccountID == 0 {
			c.sendError("account_id is required")
			return
		}
		c.hub.Subscribe(c, msg.AccountID)

	case MessageTypeUnsubscribe:
		if msg.AccountID == 0 {
			c.sendError("account_id is required")
			return
		}
		c.hub.Unsubscribe(c, msg.AccountID)

	default:
		c.sendError("unknown message type")
	}
}

// sendError is best effort. A client that cannot drain its own send
// buffer does not get error frames queued on top.
func (c *Client) sendError(reason string) {
	data, err := json.Marshal(WSMessage{Type: MessageTypeError, Error: reason})
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}
