package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/bridge"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB
)

var errClientGone = errors.New("client disconnected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the embedded surface is served from a local file origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
// It is the frame emitter for every request it sent.
type Client struct {
	hub    *Hub
	bridge *bridge.Bridge

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	mu     sync.RWMutex
	closed bool
	// done is closed before the lock is taken in close, releasing senders
	// that wait for room in send
	done      chan struct{}
	closeOnce sync.Once

	ID  string
	log *zap.Logger
}

func newClient(hub *Hub, b *bridge.Bridge, conn *websocket.Conn, id string, buffer int) *Client {
	c := &Client{
		hub:    hub,
		bridge: b,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		ID:     id,
	}
	if hub != nil {
		c.log = hub.log.With(zap.String("client", id))
	}
	return c
}

// Emit implements bridge.Emitter. Progress frames are dropped when the
// outbound queue is full; terminal frames wait up to writeWait for room.
// Frames for a client that already went away are discarded with an error.
func (c *Client) Emit(f bridge.Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}
	sent := false
	if f.Success != nil {
		sent = c.sendWait(msg, writeWait)
	} else {
		sent = c.trySend(msg)
	}
	if !sent {
		return errClientGone
	}
	return nil
}

func (c *Client) trySend(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		// Buffer full or client dead
		return false
	}
}

// sendWait blocks until msg is queued, the client closes or wait elapses
func (c *Client) sendWait(msg []byte, wait time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the websocket connection into the bridge.
func (c *Client) readPump() {
	ctx := c.hub.context()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", zap.Error(err))
			}
			break
		}
		c.bridge.Receive(ctx, message, c)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the connection to the hub and bridge.
func ServeWs(hub *Hub, b *bridge.Bridge, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	id := "surface_" + uuid.New().String()
	client := newClient(hub, b, conn, id, 256)
	select {
	case hub.register <- client:
	case <-hub.context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
