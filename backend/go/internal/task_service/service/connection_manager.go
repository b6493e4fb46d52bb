package service

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn the manager writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// client serialises writes; gorilla connections allow one concurrent writer.
type client struct {
	conn Conn
	mu   sync.Mutex
}

// ConnectionManager manages WebSocket connections. A user may hold several
// connections at once, one per open client.
type ConnectionManager struct {
	connections map[string]map[*client]struct{}
	mu          sync.RWMutex
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[*client]struct{}),
	}
}

// Add registers a new connection for a user and returns a function that
// removes and closes it.
func (m *ConnectionManager) Add(userID string, conn Conn) (remove func()) {
	c := &client{conn: conn}
	m.mu.Lock()
	if m.connections[userID] == nil {
		m.connections[userID] = make(map[*client]struct{})
	}
	m.connections[userID][c] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.drop(userID, c)
			conn.Close()
		})
	}
}

func (m *ConnectionManager) drop(userID string, c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.connections[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(m.connections, userID)
	}
}

// Count returns the number of open connections for a user.
func (m *ConnectionManager) Count(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections[userID])
}

// SendMessage sends a message to every connection of a user and returns how
// many writes succeeded. Connections that fail are dropped.
func (m *ConnectionManager) SendMessage(userID string, message []byte) int {
	m.mu.RLock()
	targets := make([]*client, 0, len(m.connections[userID]))
	for c := range m.connections[userID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, message)
		c.mu.Unlock()
		if err != nil {
			m.drop(userID, c)
			c.conn.Close()
			continue
		}
		sent++
	}
	return sent
}
