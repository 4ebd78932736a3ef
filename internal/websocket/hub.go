// Package websocket broadcasts analysis progress and status events to
// connected browser clients. The hub is one-way: clients receive events and
// send nothing back except heartbeats.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message type constants.
const (
	TypeConnection = "connection"
	TypeProgress   = "progress"
	TypeStatus     = "status"
	TypeComplete   = "analysis:complete"
	TypeError      = "error"
)

// Hub maintains the set of active clients and fans broadcast messages out
// to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64

	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHub creates a Hub. Call Start before use.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the hub loop. Safe to call more than once.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			h.greet(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				h.logger.Info("client unregistered",
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)),
					slog.Int("total_clients", count))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) greet(client *Client) {
	data, err := json.Marshal(envelope(TypeConnection, map[string]interface{}{
		"status":    "connected",
		"client_id": client.id,
	}))
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// deliver fans a message out to every client, dropping clients whose send
// buffer is full rather than blocking the hub.
func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
			h.messagesSent++
		default:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Warn("client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
}

// BroadcastProgress sends a progress event for the current analysis run.
func (h *Hub) BroadcastProgress(runID string, pct float64, message string) {
	h.broadcastJSON(envelope(TypeProgress, map[string]interface{}{
		"run_id":     runID,
		"percentage": pct,
		"message":    message,
	}))
}

// BroadcastStatus sends a run status transition.
func (h *Hub) BroadcastStatus(status, message string) {
	h.broadcastJSON(envelope(TypeStatus, map[string]interface{}{
		"status":  status,
		"message": message,
	}))
}

// BroadcastComplete announces a finished run along with its results payload.
func (h *Hub) BroadcastComplete(data interface{}) {
	h.broadcastJSON(envelope(TypeComplete, data))
}

// BroadcastError sends a structured error event.
func (h *Hub) BroadcastError(code, message string) {
	h.broadcastJSON(envelope(TypeError, map[string]interface{}{
		"code":    code,
		"message": message,
	}))
}

func envelope(msgType string, data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":      msgType,
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (h *Hub) broadcastJSON(message map[string]interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message",
			slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register queues a client for registration with the hub loop. A no-op
// after Stop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister queues a client for removal. A no-op after Stop, when the hub
// loop has already disconnected everyone.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Stop shuts the hub down and waits for the hub loop to close all client
// connections. Client send channels are closed only by the hub loop, so a
// broadcast in flight can never race a close.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

// shutdown runs on the hub loop as its final act: it disconnects every
// remaining client and signals Stop.
func (h *Hub) shutdown() {
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	h.logger.Info("hub shut down")
	close(h.done)
}
