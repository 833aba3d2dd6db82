package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service serves the browser shim: one Session per WebSocket.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Session          SessionConfig
}

// DefaultConfig returns default connection settings. Session dependencies
// must be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config) *Service {
	sessions := func(id string, userID int64, send Sender) SessionHandler {
		return NewSession(config.Session, id, userID, send)
	}
	connectionManager := NewConnectionManager(config.ConnectionConfig, sessions)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "caseroll_gateway"
	stats["status"] = "running"
	return stats
}
