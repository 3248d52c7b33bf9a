// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients
	mu      sync.RWMutex
	clients map[*Client]struct{}

	// Inbound frames to broadcast
	broadcast chan []byte

	// Register/unregister requests from clients
	register   chan *Client
	unregister chan *Client

	// greeting builds the frames a new client receives before any broadcast
	greetMu  sync.RWMutex
	greeting func() []*protocol.Message

	running atomic.Bool
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		logger:     log.Component("hub").With("hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
	}
}

// SetGreeting sets the snapshot sent to every newly connected client.
func (h *Hub) SetGreeting(fn func() []*protocol.Message) {
	h.greetMu.Lock()
	h.greeting = fn
	h.greetMu.Unlock()
}

// Run processes hub events until ctx is canceled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.greet(client)
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Info("client disconnected", "clients", h.ClientCount())
			}

		case frame := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				if h.remove(client) {
					h.logger.Warn("dropped slow client", "clients", h.ClientCount())
				}
			}
		}
	}
}

func (h *Hub) greet(client *Client) {
	h.greetMu.RLock()
	fn := h.greeting
	h.greetMu.RUnlock()
	if fn == nil {
		return
	}

	for _, msg := range fn() {
		data, err := msg.Bytes()
		if err != nil {
			h.logger.Warn("encode greeting", "error", err)
			continue
		}
		select {
		case client.send <- data:
		default:
			return
		}
	}
}

// remove deletes client and closes its send channel. Only the Run goroutine calls it.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	close(client.send)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Info("hub stopped")
}

// Broadcast queues a pre-encoded text frame for all clients.
// It never blocks; frames are dropped when the queue is full.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "bytes", len(frame))
	}
}

// BroadcastMessage encodes and broadcasts a protocol message.
func (h *Hub) BroadcastMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// BroadcastJSON encodes and broadcasts any JSON value.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}
