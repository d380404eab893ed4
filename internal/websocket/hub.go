package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Message is a real-time notification pushed to admin dashboards.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, data any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
// Retained messages are replayed to clients when they connect, so a new
// dashboard sees the latest state without waiting for the next change.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	retained map[string][]byte
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		retained: make(map[string][]byte),
		logger:   logger,
	}
}

// Register adds a client to the hub and queues the retained messages for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	keys := make([]string, 0, len(h.retained))
	for k := range h.retained {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		select {
		case c.send <- h.retained[k]:
		default:
		}
	}
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

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	h.broadcast("", msg)
}

// BroadcastRetained sends msg to all clients and keeps it under key,
// replacing the previous message with that key.
func (h *Hub) BroadcastRetained(key string, msg Message) {
	h.broadcast(key, msg)
}

func (h *Hub) broadcast(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if key != "" {
		h.retained[key] = data
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket client buffer full, message dropped", "type", msg.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
