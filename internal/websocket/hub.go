package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a points event pushed to connected clients.
type Message struct {
	Type       string         `json:"type"`
	Entity     string         `json:"entity"`
	Action     string         `json:"action"`
	ID         int64          `json:"id,omitempty"`
	PanelistID int64          `json:"panelist_id,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub fans events out to clients. Public events go to everyone; panelist
// events only reach that panelist's connections and admin connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msg Message) {
	h.send(msg, func(*Client) bool { return true })
}

// Notify sends a message about one panelist's points.
func (h *Hub) Notify(panelistID int64, msg Message) {
	msg.PanelistID = panelistID
	h.send(msg, func(c *Client) bool {
		return c.admin || c.panelistID == panelistID
	})
}

func (h *Hub) send(msg Message, want func(*Client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !want(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event for slow client", "type", msg.Type, "panelist_id", c.panelistID)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
