package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/bridge"
	"github.com/xelth-com/eckprint/internal/logger"
)

// Hub maintains the set of connected surfaces and broadcasts
// server-originated frames to all of them
type Hub struct {
	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Outbound frames for every client
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	ctx context.Context
	log *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[string]*Client),
		ctx:        context.Background(),
		log:        logger.OrNop(log).Named("ws"),
	}
}

// Run starts the hub's main loop and blocks until ctx is done.
// Requests received from clients run under ctx.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("surface connected", zap.String("client", client.ID), zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.close()
				h.log.Info("surface disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				if !c.trySend(msg) {
					h.log.Warn("dropping frame for slow client", zap.String("client", c.ID))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				c.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues f for every connected client. It never blocks; when the
// queue is full the frame is dropped and false is returned.
func (h *Hub) Broadcast(f bridge.Frame) bool {
	msg, err := json.Marshal(f)
	if err != nil {
		h.log.Error("failed to marshal broadcast frame", zap.String("action", f.Action), zap.Error(err))
		return false
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.log.Warn("broadcast queue full", zap.String("action", f.Action))
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}
