package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	DefaultSendQueueSize  = 256
	DefaultMaxMessageSize = 64 << 10
)

type ClientConfig struct {
	SendQueueSize  int
	MaxMessageSize int64
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// Client is a gorilla WebSocket connection admitted to the hub. One
// goroutine reads requests, one goroutine owns every write, so frames leave
// in the order they were enqueued.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	config ClientConfig

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

var _ Sink = (*Client)(nil)

func newClient(hub *Hub, conn *websocket.Conn, p Principal, config ClientConfig) *Client {
	return &Client{
		id:     p.ConnectionID,
		userID: p.UserID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, config.SendQueueSize),
		config: config,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Enqueue never blocks: a full queue means the peer is not keeping up.
func (c *Client) Enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientDisconnected
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close releases the connection from the hub before returning. The socket
// itself is closed by the write pump once the queue is drained.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.hub.Release(c.id)
		slog.Debug("Client closed", "clientID", c.id, "userID", c.userID)
	})
	return nil
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	slog.Debug("ReadPump started", "clientID", c.id, "userID", c.userID)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.userID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.userID, "error", err)
			}
			return
		}
		c.hub.HandleRequest(ctx, c.id, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
		slog.Debug("WritePump finished", "clientID", c.id, "userID", c.userID)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "userID", c.userID, "error", err)
				return
			}
		}
	}
}

// ServeWS upgrades an already authenticated request and admits it to hub.
// The connection id of p is assigned here.
func ServeWS(ctx context.Context, hub *Hub, upgrader *websocket.Upgrader, config ClientConfig, w http.ResponseWriter, r *http.Request, p Principal) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "userID", p.UserID, "error", err)
		return
	}

	p.ConnectionID = uuid.NewString()
	client := newClient(hub, conn, p, config.withDefaults())

	if err := hub.Admit(p, client); err != nil {
		slog.Error("Failed to admit connection", "clientID", p.ConnectionID, "userID", p.UserID, "error", err)
		conn.Close()
		return
	}
	slog.Info("New WebSocket connection established", "clientID", client.id, "userID", client.userID)

	go client.writePump()
	go client.readPump(ctx)
}
