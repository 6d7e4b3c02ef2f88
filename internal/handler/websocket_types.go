// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client types
const (
	ClientTypePosition = "position"
	ClientTypeEvents   = "events"
)

// Client represents a WebSocket client. Send is never closed; writers
// select on Done instead.
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	Type        string          `json:"type"`
	SessionID   *string         `json:"session_id,omitempty"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mu            sync.RWMutex
	subscriptions map[string]bool

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, clientType string) *Client {
	return &Client{
		ID:          id,
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		ConnectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Done is closed when the client is unregistered
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Subscribe adds a topic. Topics are event types or session IDs.
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]bool)
	}
	c.subscriptions[topic] = true
}

// Unsubscribe removes a topic
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, topic)
}

// Wants reports whether any of topics is subscribed. A client without
// subscriptions wants everything.
func (c *Client) Wants(topics ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	for _, t := range topics {
		if c.subscriptions[t] {
			return true
		}
	}
	return false
}

// Subscriptions returns the subscribed topics
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		out = append(out, t)
	}
	return out
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{clients: make(map[string]*Client)}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister unregisters a client and signals its goroutines to stop
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	delete(cm.clients, client.ID)
	cm.mutex.Unlock()
	client.close()
}

// CloseAll unregisters every client
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	clients := cm.clients
	cm.clients = make(map[string]*Client)
	cm.mutex.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// GetEventClients returns all event clients
func (cm *ConnectionManager) GetEventClients() []*Client {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var clients []*Client
	for _, client := range cm.clients {
		if client.Type == ClientTypeEvents {
			clients = append(clients, client)
		}
	}
	return clients
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByType:           make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		stats.ByType[client.Type]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByType           map[string]int `json:"by_type"`
	Clients          []*Client      `json:"clients"`
}
