package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lynsa/outreach-backend/internal/logging"
)

// Client wraps one WebSocket connection.
type Client struct {
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// replyEvent is the wire shape of a reply notification.
type replyEvent struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
}

// Hub manages active WebSocket connections per user.
// A user may hold several connections at once (e.g. multiple tabs).
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{} // userID -> set of clients
	maxPerUser int
}

// NewHub creates a Hub with a per-user connection limit.
func NewHub(maxPerUser int) *Hub {
	if maxPerUser <= 0 {
		maxPerUser = 10
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxPerUser: maxPerUser,
	}
}

// Register adds a WebSocket connection for the given user.
// If the per-user limit is exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[userID]
	if !ok {
		userClients = make(map[*Client]struct{})
		h.clients[userID] = userClients
	}

	if len(userClients) >= h.maxPerUser {
		logging.Log.Warnf("User %s exceeded max websocket connections (%d), closing new connection", userID, h.maxPerUser)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this user"),
			// Zero deadline - best effort.
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	userClients[client] = struct{}{}
	return client
}

// Unregister removes a client for the given user and closes the connection.
func (h *Hub) Unregister(userID string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[userID]
	if !ok {
		_ = client.conn.Close()
		return
	}

	delete(userClients, client)

	if len(userClients) == 0 {
		delete(h.clients, userID)
	}

	_ = client.conn.Close()
}

// NotifyReply tells every connection of the thread owner that a reply
// arrived on the given thread.
func (h *Hub) NotifyReply(userID, correlationID string) {
	msg, err := json.Marshal(replyEvent{Type: "reply", CorrelationID: correlationID})
	if err != nil {
		logging.Log.Errorf("Failed to encode reply event: %v", err)
		return
	}
	h.Send(userID, msg)
}

// Send broadcasts a message to all active clients for the user.
func (h *Hub) Send(userID string, msg []byte) {
	// Snapshot the client set so writes happen without holding the lock
	// while Register/Unregister keep mutating the map.
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logging.Log.Warnf("Failed to write websocket message for user %s: %v", userID, err)
			go h.Unregister(userID, client)
		}
	}
}

// ActiveConnections returns the number of active connections for a user.
func (h *Hub) ActiveConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID])
}
