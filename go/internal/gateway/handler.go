package gateway

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests from the shim
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection upgrades /ws?user_id=<id>. A missing user id opens an
// anonymous session.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		userID = id
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		// The upgrader has already answered the request.
		log.Error().
			Err(err).
			Int64("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(h.connectionManager.GetConnectionStats())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
