package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pitdev14/workgp/go/internal/bus"
)

// ConnectionManager manages WebSocket connections keyed by racer. A racer
// may hold several connections at once (several open tabs); an event
// addressed to a racer with no open connection is silently dropped.
type ConnectionManager struct {
	userConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	bus         bus.Bus
	broadcastCh chan bus.Event
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID       string
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket connection manager forwarding
// events from b.
func NewConnectionManager(b bus.Bus, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		userConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		bus:         b,
		broadcastCh: make(chan bus.Event, 1000),
	}
}

// Start subscribes to the bus and processes broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	if err := cm.bus.Subscribe(ctx, func(event bus.Event) {
		select {
		case cm.broadcastCh <- event:
		default:
			log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping event")
		}
	}); err != nil {
		return fmt.Errorf("subscribe to bus: %w", err)
	}

	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return nil
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket for the given
// racer and announces them online.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, username string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Username:    username,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	first := cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	if first {
		cm.publishPresence(bus.EventTypeOnline, username)
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("username", username).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection; reports whether it is the racer's
// first open connection.
func (cm *ConnectionManager) registerConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.userConnections[conn.Username] == nil {
		cm.userConnections[conn.Username] = make(map[*Connection]bool)
	}
	cm.userConnections[conn.Username][conn] = true
	first := len(cm.userConnections[conn.Username]) == 1

	log.Debug().
		Str("connection_id", conn.ID).
		Str("username", conn.Username).
		Int("connections", len(cm.userConnections[conn.Username])).
		Msg("connection registered")
	return first
}

// unregisterConnection removes a connection and announces the racer offline
// when their last connection closes.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	last := false
	if connections, exists := cm.userConnections[conn.Username]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.userConnections, conn.Username)
				last = true
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("username", conn.Username).
				Msg("connection unregistered")
		}
	}
	cm.mu.Unlock()

	if last {
		cm.publishPresence(bus.EventTypeOffline, conn.Username)
	}
}

func (cm *ConnectionManager) publishPresence(eventType bus.EventType, username string) {
	event, err := bus.NewEvent(eventType, "", bus.PresencePayload{Username: username})
	if err != nil {
		log.Error().Err(err).Msg("failed to build presence event")
		return
	}
	if err := cm.bus.Publish(context.Background(), event); err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to publish presence event")
	}
}

// handleBroadcast forwards a bus event to its audience: the addressed
// racer's connections, or everyone when unaddressed.
func (cm *ConnectionManager) handleBroadcast(event bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Send while holding the read lock: a connection still registered has
	// an open Send channel, since unregisterConnection closes it under the
	// write lock. The sends are non-blocking, so pump deferred cleanup
	// waiting on that lock cannot deadlock us.
	cm.mu.RLock()
	sent := 0
	var stale []*Connection
	deliver := func(conn *Connection) {
		select {
		case conn.Send <- data:
			sent++
		default:
			stale = append(stale, conn)
		}
	}
	if event.Username != "" {
		for conn := range cm.userConnections[event.Username] {
			deliver(conn)
		}
	} else {
		for _, connections := range cm.userConnections {
			for conn := range connections {
				deliver(conn)
			}
		}
	}
	cm.mu.RUnlock()

	if sent == 0 && len(stale) == 0 {
		// Addressed racer has no open connection: dropped, per contract.
		return
	}

	for _, conn := range stale {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("username", conn.Username).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Int("connections", sent).
		Msg("event broadcasted")
}

// OnlineUsers returns the racers with at least one open connection.
func (cm *ConnectionManager) OnlineUsers() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	online := make([]string, 0, len(cm.userConnections))
	for username := range cm.userConnections {
		online = append(online, username)
	}
	return online
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (total int, racers int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.userConnections {
		total += len(connections)
	}
	return total, len(cm.userConnections)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
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
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
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

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes messages received from the client. The
// client surface is read-only: actions go through the HTTP API, so inbound
// frames are only logged.
func (c *Connection) handleClientMessage(message []byte) {
	log.Debug().
		Str("connection_id", c.ID).
		Str("username", c.Username).
		RawJSON("message", message).
		Msg("received client message")
}
