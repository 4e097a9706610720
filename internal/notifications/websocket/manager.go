package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

var errHubStopped = errors.New("websocket hub stopped")

// Manager handles live-feed connections and message routing
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	UserID       string
	Conn         *websocket.Conn
	Send         chan notifications.WebSocketMessage
	ConnectedAt  time.Time
	LastActivity time.Time
	UserAgent    string
	IPAddress    string
	mu           sync.Mutex
}

type directMessage struct {
	userID  string
	message notifications.WebSocketMessage
}

// Hub owns the connection set; only its goroutine sends on or closes a Send channel
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.WebSocketMessage
	direct      chan directMessage
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a new WebSocket manager
func NewManager(allowedOrigins []string, logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.WebSocketMessage, sendBuffer),
		direct:      make(chan directMessage, sendBuffer),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleConnection upgrades the request and attaches it to the hub. userID is
// empty for anonymous clients, which only receive public events.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Conn:         conn,
		Send:         make(chan notifications.WebSocketMessage, sendBuffer),
		ConnectedAt:  now,
		LastActivity: now,
		UserAgent:    r.Header.Get("User-Agent"),
		IPAddress:    r.RemoteAddr,
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		conn.Close()
		return nil, errHubStopped
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	// The hub handles the greeting after the registration, so a client that
	// has read it will receive every later event.
	select {
	case m.hub.direct <- directMessage{userID: "conn:" + connection.ID, message: statusMessage(connection, "connected")}:
	case <-m.hub.stop:
	}

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

func statusMessage(conn *Connection, status string) notifications.WebSocketMessage {
	data, _ := json.Marshal(map[string]string{"status": status, "connection_id": conn.ID})
	return notifications.WebSocketMessage{
		Type:      notifications.WSMessageTypeStatus,
		Data:      datatypes.JSON(data),
		Timestamp: time.Now(),
		Channel:   "private",
		Target:    conn.UserID,
	}
}

// readPump consumes client frames until the connection drops
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.detach(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg notifications.WebSocketMessage
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read failed",
					zap.String("connection_id", conn.ID),
					zap.Error(err))
			}
			return
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()

		if msg.Type == notifications.WSMessageTypePing {
			m.sendDirect(conn, notifications.WebSocketMessage{
				Type:      notifications.WSMessageTypePong,
				Timestamp: time.Now(),
				Channel:   "private",
			})
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) detach(conn *Connection) {
	m.mu.Lock()
	delete(m.connections, conn.ID)
	m.mu.Unlock()

	select {
	case m.hub.unregister <- conn:
	case <-m.hub.stop:
	}
}

// sendDirect routes a reply to one connection through the hub.
func (m *Manager) sendDirect(conn *Connection, message notifications.WebSocketMessage) {
	select {
	case m.hub.direct <- directMessage{userID: "conn:" + conn.ID, message: message}:
	default:
	}
}

// run runs the hub in its own goroutine
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				h.offer(conn, message)
			}

		case dm := <-h.direct:
			for conn := range h.connections {
				if conn.UserID == dm.userID || "conn:"+conn.ID == dm.userID {
					h.offer(conn, dm.message)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// offer drops a connection whose buffer is full rather than blocking the hub.
func (h *Hub) offer(conn *Connection, message notifications.WebSocketMessage) {
	select {
	case conn.Send <- message:
	default:
		h.logger.Warn("Dropping slow websocket client", zap.String("connection_id", conn.ID))
		close(conn.Send)
		delete(h.connections, conn)
	}
}

// SendToUser queues a message for every connection of userID
func (m *Manager) SendToUser(userID string, message notifications.WebSocketMessage) error {
	message.Target = userID
	select {
	case m.hub.direct <- directMessage{userID: userID, message: message}:
		return nil
	default:
		return fmt.Errorf("direct channel full")
	}
}

// Broadcast sends a message to all connected clients
func (m *Manager) Broadcast(message notifications.WebSocketMessage) error {
	select {
	case m.hub.broadcast <- message:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// Name implements notifications.Sink.
func (m *Manager) Name() string { return "websocket" }

// Deliver implements notifications.Sink: public events go to everyone, the
// rest only to the recipient's connections.
func (m *Manager) Deliver(ctx context.Context, evt notifications.Event) error {
	msg, err := notifications.MessageFromEvent(evt)
	if err != nil {
		return err
	}
	if evt.Type.Public() {
		return m.Broadcast(msg)
	}
	if evt.RecipientID == nil {
		return nil
	}
	if !m.IsUserConnected(evt.RecipientID.String()) {
		return nil
	}
	return m.SendToUser(evt.RecipientID.String(), msg)
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// IsUserConnected reports whether userID has at least one live connection.
func (m *Manager) IsUserConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}

// ConnectionInfo represents connection information for monitoring
type ConnectionInfo struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
}

// GetConnectionInfo returns information about all active connections
func (m *Manager) GetConnectionInfo() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make([]ConnectionInfo, 0, len(m.connections))
	for _, conn := range m.connections {
		conn.mu.Lock()
		info = append(info, ConnectionInfo{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.LastActivity,
			UserAgent:    conn.UserAgent,
			IPAddress:    conn.IPAddress,
		})
		conn.mu.Unlock()
	}
	return info
}

// Close stops the hub, which closes every Send channel and so every writer
func (m *Manager) Close() {
	close(m.hub.stop)
}
