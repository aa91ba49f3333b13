// Package live pushes new conversation messages to open websocket clients.
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
)

const writeWait = 10 * time.Second

// Event is the JSON payload sent to subscribers.
type Event struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps the websocket subscribers of each conversation.
type Hub struct {
	rooms    map[int64]map[*client]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]map[*client]bool)}
}

func (h *Hub) add(conversationID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*client]bool)
	}
	h.rooms[conversationID][c] = true
}

func (h *Hub) remove(conversationID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[conversationID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// Subscribers returns the number of clients watching a conversation.
func (h *Hub) Subscribers(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Publish sends msg to every subscriber of the conversation. Subscribers
// whose write fails are dropped.
func (h *Hub) Publish(conversationID int64, msg model.Message) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(Event{Type: "message", Message: &msg})
	if err != nil {
		slog.Error("encoding websocket event", "error", err)
		return
	}
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			slog.Warn("websocket write failed", "conversation", conversationID, "client", c.id, "error", err)
			c.conn.Close()
			h.remove(conversationID, c)
		}
	}
}

// Serve upgrades the request and keeps the connection subscribed to the
// conversation until the client goes away. The caller checks access first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, conversationID int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	h.add(conversationID, c)
	metrics.IncWSActive()
	slog.Info("websocket connected", "conversation", conversationID, "client", c.id)

	defer func() {
		h.remove(conversationID, c)
		metrics.DecWSActive()
		conn.Close()
		slog.Info("websocket disconnected", "conversation", conversationID, "client", c.id)
	}()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
