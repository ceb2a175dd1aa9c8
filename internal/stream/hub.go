// Package stream pushes price updates to WebSocket subscribers. Each
// successful poll tick is broadcast to every client watching that market;
// clients that cannot keep up are dropped rather than buffered without bound.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/model"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 50 * time.Second
	clientBufSize = 8
)

// Hub fans successful price updates out to WebSocket clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	market model.Market
	send   chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Public read-only data; any origin may subscribe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and registers the client for a market.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, market model.Market) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		market: market,
		send:   make(chan []byte, clientBufSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	logrus.Debugf("WebSocket client subscribed to %s (%d connected)", market, n)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast sends a price to every client subscribed to its market.
// Clients with a full send buffer are dropped.
func (h *Hub) Broadcast(p model.DerivedPrice) {
	raw, err := json.Marshal(p)
	if err != nil {
		logrus.Warnf("Failed to marshal price update: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.market != p.Market {
			continue
		}
		select {
		case c.send <- raw:
		default:
			logrus.Debug("Dropping slow WebSocket client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Close drops all clients and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients, for the status endpoint.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; it exists to process control messages
// and to detect a closed connection.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
