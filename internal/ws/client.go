package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"keikkaduuni/internal/wire"
)

// Client is one websocket connection. Only its writer goroutine writes to
// conn, so frames leave in the order they were queued.
type Client struct {
	hub    *Hub
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]struct{} // guarded by hub.mu
	done   chan struct{}
	once   sync.Once
}

func (c *Client) UserID() int64 { return c.userID }

func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// sendDirect queues an event for this socket only.
func (c *Client) sendDirect(event string, data any) {
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		c.hub.log.Error("build envelope", zap.Error(err))
		return
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return
	}
	if !c.enqueue(msg) {
		c.hub.metrics.Dropped.WithLabelValues(event).Inc()
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.log.Debug("ws write", zap.Int64("user_id", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump decodes incoming frames and hands them to handle until the
// connection fails.
func (c *Client) readPump(handle func(wire.Envelope)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("ws read", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.sendDirect(wire.EventError, wire.ErrorEvent{Message: "malformed frame"})
			continue
		}
		handle(env)
	}
}
