package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/notify"
)

// WebSocketHandler handles the /api/v1/ws endpoint for reply notifications.
type WebSocketHandler struct {
	hub *notify.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *notify.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// This server is expected to sit behind a reverse proxy in a
		// trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with
// the hub. The caller identifies itself with the user_id query parameter;
// there is no authentication on this surface.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.Warnf("Failed to upgrade websocket connection for user %s: %v", userID, err)
		return
	}

	client := h.hub.Register(userID, conn)
	if client == nil {
		logging.Log.Warnf("Websocket connection rejected for user %s (max connections exceeded)", userID)
		return
	}

	go h.readLoop(userID, client)
}

// readLoop drains the connection until it closes, then unregisters the
// client.
func (h *WebSocketHandler) readLoop(userID string, client *notify.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(userID, client)
}
