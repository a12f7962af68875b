// Package realtime is the server-side half of the Realtime Bus of §4.E: a
// process-local registry of connected clients keyed by userId, built on
// gorilla/websocket connections.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waitline/queuecoord/internal/resilience"
)

// OfflineBuffer is the subset of resilience.OfflineBuffer the Hub needs to
// hold frames for disconnected users. Satisfied structurally by
// *resilience.OfflineBuffer (in-process) and *resilience.RedisOfflineBuffer
// (shared across coordinator instances), so the composition root can swap
// backends without Hub knowing which one it got.
type OfflineBuffer interface {
	Enqueue(userID string, frame interface{})
	Flush(userID string) []*resilience.BufferedFrame
}

// Frame is any server-pushed payload; every concrete frame type carries a
// `type` discriminator and `timestamp`, per §6.
type Frame map[string]interface{}

// NewFrame builds a Frame with its type and timestamp fields populated.
func NewFrame(frameType string, fields map[string]interface{}) Frame {
	f := Frame{"type": frameType, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range fields {
		f[k] = v
	}
	return f
}

// connection is one attached websocket connection. It starts
// unauthenticated: it may only receive `connected` and `pong` until it
// sends an `authenticate` frame naming a userId, per §4.E.
type connection struct {
	mu            sync.Mutex
	ws            *websocket.Conn
	userID        string
	authenticated bool
}

func (c *connection) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub is the realtime bus registry: attach/detach/send/broadcast.
type Hub struct {
	mu        sync.RWMutex
	byUser    map[string][]*connection
	all       map[*websocket.Conn]*connection
	buffer    OfflineBuffer
	venueOwnerLookup func(userID string) []string // venues this user owns, injected by composition root
}

// NewHub builds an empty Hub backed by buffer for offline delivery. buffer
// may be nil, in which case undelivered frames are dropped.
func NewHub(buffer OfflineBuffer, venueOwnerLookup func(userID string) []string) *Hub {
	return &Hub{
		byUser:           make(map[string][]*connection),
		all:              make(map[*websocket.Conn]*connection),
		buffer:           buffer,
		venueOwnerLookup: venueOwnerLookup,
	}
}

// Attach registers a freshly-opened websocket connection, unauthenticated
// until it sends an authenticate frame. The caller owns the read loop and
// should call HandleClientFrame for every inbound message.
func (h *Hub) Attach(ws *websocket.Conn) {
	c := &connection{ws: ws}
	h.mu.Lock()
	h.all[ws] = c
	h.mu.Unlock()

	_ = c.writeJSON(NewFrame("connected", nil))
}

// Detach removes a connection on close.
func (h *Hub) Detach(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.all[ws]
	if !ok {
		return
	}
	delete(h.all, ws)
	if c.userID != "" {
		conns := h.byUser[c.userID]
		for i, cc := range conns {
			if cc == c {
				h.byUser[c.userID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.byUser[c.userID]) == 0 {
			delete(h.byUser, c.userID)
		}
	}
}

// HandleClientFrame processes an inbound client->server frame:
// `authenticate {userId}` or `ping`.
func (h *Hub) HandleClientFrame(ws *websocket.Conn, raw []byte) {
	var msg struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.mu.RLock()
		c := h.all[ws]
		h.mu.RUnlock()
		if c != nil {
			_ = c.writeJSON(NewFrame("error", map[string]interface{}{"message": "invalid frame"}))
		}
		return
	}

	h.mu.Lock()
	c, ok := h.all[ws]
	h.mu.Unlock()
	if !ok {
		return
	}

	switch msg.Type {
	case "authenticate":
		if msg.UserID == "" {
			_ = c.writeJSON(NewFrame("auth_error", map[string]interface{}{"message": "userId required"}))
			return
		}
		h.mu.Lock()
		c.userID = msg.UserID
		c.authenticated = true
		h.byUser[msg.UserID] = append(h.byUser[msg.UserID], c)
		h.mu.Unlock()

		_ = c.writeJSON(NewFrame("authenticated", map[string]interface{}{"userId": msg.UserID}))

		if h.buffer != nil {
			for _, bf := range h.buffer.Flush(msg.UserID) {
				_ = c.writeJSON(bf.Frame)
			}
		}
	case "ping":
		_ = c.writeJSON(NewFrame("pong", nil))
	}
}

// IsConnected reports whether userID currently has an authenticated
// connection attached.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// Send delivers frame to every connection for userID, returning whether
// at least one connection received it. If none are connected and buffer
// is configured, the frame is buffered for replay on reconnect.
func (h *Hub) Send(userID string, frame Frame) bool {
	h.mu.RLock()
	conns := append([]*connection{}, h.byUser[userID]...)
	h.mu.RUnlock()

	if len(conns) == 0 {
		if h.buffer != nil {
			h.buffer.Enqueue(userID, frame)
		}
		return false
	}

	delivered := false
	for _, c := range conns {
		if err := c.writeJSON(frame); err == nil {
			delivered = true
		}
	}
	return delivered
}

// Broadcast sends frame to every authenticated connection.
func (h *Hub) Broadcast(frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.all {
		if c.authenticated {
			_ = c.writeJSON(frame)
		}
	}
}

// BroadcastToVenueOwners sends frame to every connection whose user owns
// venueID, per §4.E.
func (h *Hub) BroadcastToVenueOwners(venueID string, frame Frame) {
	if h.venueOwnerLookup == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, conns := range h.byUser {
		owns := false
		for _, v := range h.venueOwnerLookup(userID) {
			if v == venueID {
				owns = true
				break
			}
		}
		if !owns {
			continue
		}
		for _, c := range conns {
			_ = c.writeJSON(frame)
		}
	}
}
