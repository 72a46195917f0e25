package server

import (
	"log/slog"
	"sync"
)

// Line is one engine output line as sent to WebSocket clients.
type Line struct {
	Stream string `json:"stream"` // "engine" or "stderr"
	Line   string `json:"line"`
}

// Client is a single connected WebSocket consumer.
type Client struct {
	ID    string
	Lines chan Line
	Done  chan struct{}
}

// Hub fans engine output out to all connected clients. Slow clients do
// not block the session: a full channel drops the line for that client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// RegisterClient adds a client to the hub.
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	slog.Info("WebSocket client registered", "clientID", client.ID)
}

// UnregisterClient removes a client. The client's Done channel is
// closed by the handler that created it, not here.
func (h *Hub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		slog.Info("WebSocket client unregistered", "clientID", clientID)
	}
}

// Broadcast sends one line to every connected client.
func (h *Hub) Broadcast(line Line) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Lines <- line:
		case <-client.Done:
			// Client disconnected
		default:
			slog.Warn("WebSocket client channel full, dropping line", "clientID", client.ID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
