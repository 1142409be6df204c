package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

// Client is one websocket connection.
//
// GOROUTINES:
// readPump runs on the goroutine that accepted the connection and executes
// handlers in arrival order. writePump owns every write to the socket and
// drains send. Anything that wants to talk to the client goes through
// enqueue, never through conn directly.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	logger  *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, sess *Session, logger *slog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: sess,
		logger:  logger.With("conn", sess.ID),
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.session.ID
}

// enqueue queues msg for the writer. A client that has fallen sendBuffer
// messages behind is disconnected rather than allowed to stall broadcasts.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("send queue full, dropping client")
		c.drop()
		return false
	}
}

// close sends a close frame and tears the connection down. Safe to call more
// than once and from any goroutine.
func (c *Client) close() { c.shutdown(true) }

// drop tears the connection down without a close frame. The socket of a
// lagging client may be stuck in a write, and the caller is a broadcast.
func (c *Client) drop() { c.shutdown(false) }

func (c *Client) shutdown(graceful bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		if graceful {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
		}
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("connection lost", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.hub.emitError(c, env.Event, apperror.ValidationFailed("event", "malformed message: expected {\"event\": ..., \"data\": ...}"))
			continue
		}

		c.hub.dispatch(ctx, c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("write failed", "error", err)
				}
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
