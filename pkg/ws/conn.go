package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Conn is a live authenticated connection: the socket handle, its resolved
// user id and a buffered outgoing channel. It is created only after the
// handshake has been verified; an unauthenticated Conn must never exist.
type Conn struct {
	ID     string
	UserID string

	ws   *websocket.Conn
	send chan []byte
	log  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an upgraded socket with its verified identity.
func NewConn(wsConn *websocket.Conn, userID string, log *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:     id,
		UserID: userID,
		ws:     wsConn,
		send:   make(chan []byte, sendBuffer),
		log: log.With(
			zap.String("conn_id", id),
			zap.String("user_id", userID),
		),
	}
}

// Send queues a frame without blocking. A full buffer means the consumer is
// too slow; the frame is dropped and false returned, so one stalled socket
// never stalls a room broadcast. Send and Close share a lock: a broadcast
// holding a reference to a connection that just disconnected reports false
// instead of hitting a closed channel.
func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("send buffer full, dropping frame")
		return false
	}
}

// Close shuts the outgoing channel; the write pump sends a close frame and
// tears down the socket. Safe to call more than once and safe against
// concurrent Send.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps frames from the socket to onMessage until the peer goes
// away, then runs onClose. Must be called on the connection's own goroutine.
func (c *Conn) ReadPump(onMessage func([]byte), onClose func()) {
	defer func() {
		onClose()
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("error reading from client", zap.Error(err))
			} else {
				c.log.Info("client closed connection")
			}
			return
		}
		onMessage(msg)
	}
}

// WritePump pumps queued frames to the socket and keeps the connection alive
// with pings. Exits when the send channel closes or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("ping error", zap.Error(err))
				return
			}
		}
	}
}
