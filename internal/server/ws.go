package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/store"
)

// ---------------------------------------------------------------------------
// Live delta feed — broadcasts DeltaEvents to websocket clients as the
// engine emits them. Slow clients get dropped, never block a broadcast.
// ---------------------------------------------------------------------------

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	clientBuffer   = 16
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed by unregister, never the send channel
}

// Hub fans DeltaEvents out to all connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*liveClient]struct{}

	// onCountChange, when set, receives the client count after every
	// register/unregister (drives the live-clients gauge).
	onCountChange func(int)
}

// NewHub creates an empty hub. onCountChange may be nil.
func NewHub(onCountChange func(int)) *Hub {
	return &Hub{
		clients:       make(map[*liveClient]struct{}),
		onCountChange: onCountChange,
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a delta event to every connected client. Clients whose
// send buffer is full are disconnected.
func (h *Hub) Broadcast(event store.DeltaEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Msg("server: marshal delta event failed")
		return
	}

	// The lock is held across the sends so no client is unregistered out
	// from under a concurrent broadcast. Sends are non-blocking, so the
	// critical section stays short.
	h.mu.RLock()
	var slow []*liveClient
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(c)
	}
}

func (h *Hub) register(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.onCountChange != nil {
		h.onCountChange(n)
	}
}

func (h *Hub) unregister(c *liveClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	// The map-presence check above guarantees a single closer. The send
	// channel itself is never closed; broadcasts racing with an unregister
	// at worst deliver into a buffer nobody drains.
	close(c.done)
	if h.onCountChange != nil {
		h.onCountChange(n)
	}
}

// handleLive upgrades the connection and attaches it to the hub.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("server: websocket upgrade failed")
		return
	}

	c := &liveClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
	s.deps.Hub.register(c)

	go s.deps.Hub.writePump(c)
	go s.deps.Hub.readPump(c)
}

// writePump drains the client's send channel onto the wire and keeps the
// connection alive with pings.
func (h *Hub) writePump(c *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the feed is one-way. Its real job is
// noticing the disconnect.
func (h *Hub) readPump(c *liveClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
