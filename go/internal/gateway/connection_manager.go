package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/caseroll/go/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SessionHandler is the per-connection logic behind a WebSocket.
type SessionHandler interface {
	Start()
	Handle(data []byte) error
	Close()
}

// SessionFactory creates the handler of a new connection.
type SessionFactory func(id string, userID int64, send Sender) SessionHandler

// ConnectionManager tracks the live shim connections.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	sessions SessionFactory
}

// Connection is a WebSocket to one browser shim.
type Connection struct {
	ID       string
	UserID   int64
	Conn     *websocket.Conn
	Manager  *ConnectionManager
	Session  SessionHandler
	outbound chan []byte

	ConnectedAt time.Time

	// limiter bounds how fast the shim may send messages.
	limiter *rate.Limiter

	mu       sync.Mutex
	closed   bool
	lastPing time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	MessageRate     rate.Limit
	MessageBurst    int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 << 10,
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
		SendBuffer:      1024,
		MessageRate:     100,
		MessageBurst:    200,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, sessions SessionFactory) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConnectionConfig().SendBuffer
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		sessions: sessions,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts the
// session behind it.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID int64) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		outbound:    make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: now,
		lastPing:    now,
	}
	if cm.config.MessageRate > 0 {
		connection.limiter = rate.NewLimiter(cm.config.MessageRate, max(cm.config.MessageBurst, 1))
	}
	connection.Session = cm.sessions(connection.ID, userID, connection)

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()
	connection.Session.Start()

	log.Info().
		Str("connection_id", connection.ID).
		Int64("user_id", userID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ID] = conn
	metrics.AddSessions(1)

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and closes its send queue. It is
// safe to call from both pumps.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.ID]
	if exists {
		delete(cm.connections, conn.ID)
		metrics.AddSessions(-1)
	}
	cm.mu.Unlock()

	if !exists {
		return
	}

	conn.mu.Lock()
	conn.closed = true
	close(conn.outbound)
	conn.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Int64("user_id", conn.UserID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

// Connections returns the number of live connections.
func (cm *ConnectionManager) Connections() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	users := make(map[int64]bool)
	for _, c := range cm.connections {
		if c.UserID > 0 {
			users[c.UserID] = true
		}
	}
	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"users":             len(users),
	}
}

// Send queues cmd for the shim. It never blocks: a full queue drops the
// command and reports false, as does a closed connection.
func (c *Connection) Send(cmd Command) bool {
	data, err := json.Marshal(cmd)
	if err != nil {
		log.Error().Err(err).Str("command", string(cmd.Type)).Msg("failed to marshal command")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.outbound <- data:
		return true
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("command", string(cmd.Type)).
			Msg("connection send buffer full, dropping command")
		return false
	}
}

// LastPing is when the shim last answered a ping.
func (c *Connection) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.outbound:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump feeds shim messages to the session until the socket closes, then
// tears the session down.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		c.Session.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		if c.limiter != nil && !c.limiter.Allow() {
			log.Warn().
				Str("connection_id", c.ID).
				Int("bytes", len(message)).
				Msg("client message rate exceeded, dropping message")
			continue
		}

		if err := c.Session.Handle(message); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Msg("invalid client message")
		}
	}
}
