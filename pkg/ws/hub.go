package ws

import (
	"sync"

	"go.uber.org/zap"
)

// UserRoom derives the broadcast group name for a user. Every socket of one
// user, across tabs and devices, shares this room and nothing else does.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Hub is the server-local room registry: room name -> connection id -> Conn.
// Rooms are created on first join and drain to zero on their own; an empty
// room simply absorbs broadcasts.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn
	log   *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*Conn),
		log:   log.With(zap.String("module", "ws_hub")),
	}
}

// Join adds a connection to a room. Joining a room you are already in is a
// no-op, which makes explicit subscribe requests idempotent.
func (h *Hub) Join(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Conn)
	}
	h.rooms[room][c.ID] = c
}

// Leave removes a connection from a room.
func (h *Hub) Leave(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast fans a frame out to every connection currently in the room and
// returns how many accepted it. Only local sockets are touched; sockets held
// by other instances get the same event from their own subscriber.
func (h *Hub) Broadcast(room string, frame []byte) int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if c.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// Members reports the current size of a room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
