package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"pasarbekas/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection. A user may hold several.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
}

// Manager tracks live connections and pushes notifications to them.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
	chat       ChatService
	clock      clockwork.Clock
	done       chan struct{}
}

func NewManager(chat ChatService, clock clockwork.Clock) *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		chat:       chat,
		clock:      clock,
		done:       make(chan struct{}),
	}
}

// SetChat attaches the chat engine. Call it before Start.
func (m *Manager) SetChat(chat ChatService) {
	m.chat = chat
}

// Start runs the registration loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				conns, ok := m.clients[client.UserID]
				if !ok {
					conns = make(map[*Client]struct{})
					m.clients[client.UserID] = conns
				}
				conns[client] = struct{}{}
				m.mutex.Unlock()
				logger.Debug("Websocket client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.remove(client)
				logger.Debug("Websocket client unregistered: %s", client.UserID)

			case <-ctx.Done():
				m.mutex.Lock()
				for _, conns := range m.clients {
					for c := range conns {
						close(c.Send)
					}
				}
				m.clients = make(map[string]map[*Client]struct{})
				m.mutex.Unlock()
				return
			}
		}
	}()
}

// Add registers client. It returns false once the manager has stopped.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	close(client.Send)
	if len(conns) == 0 {
		delete(m.clients, client.UserID)
	}
}

// Connections returns how many sockets userID has open.
func (m *Manager) Connections(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// Notify pushes an event to every connection of the given users. It never blocks:
// a connection whose buffer is full is dropped.
func (m *Manager) Notify(userIDs []string, eventType string, data interface{}) {
	payload, err := json.Marshal(WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: m.clock.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.Error("Failed to encode %s notification: %v", eventType, err)
		return
	}
	for _, userID := range userIDs {
		m.SendToUser(userID, payload)
	}
}

func (m *Manager) SendToUser(userID string, message []byte) {
	m.mutex.RLock()
	var slow []*Client
	for client := range m.clients[userID] {
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range slow {
		logger.Warn("Dropping slow websocket client %s", client.UserID)
		m.remove(client)
	}
}

// ReadPump reads frames until the connection fails and hands each one to HandleClientMessage.
func (c *Client) ReadPump(ctx context.Context, m *Manager) {
	defer func() {
		select {
		case m.Unregister <- c:
		case <-ctx.Done():
		case <-m.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Websocket read error for %s: %v", c.UserID, err)
			}
			return
		}
		m.HandleClientMessage(ctx, c, message)
	}
}

// WritePump drains Send onto the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Websocket write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
