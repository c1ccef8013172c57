// Package ws streams live book summaries to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// BookSource yields summaries of the live books.
type BookSource interface {
	Books(n int) []domain.BookSummary
}

// Envelope is the frame sent to clients.
type Envelope struct {
	Type    string               `json:"type"`
	TS      int64                `json:"ts"`
	Payload []domain.BookSummary `json:"payload"`
}

// subscribeMsg changes the set of markets a client receives. "*" means all.
type subscribeMsg struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

// Hub pushes a book snapshot to every connected client on each tick.
type Hub struct {
	source   BookSource
	interval time.Duration
	depth    int
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub streaming source every interval with depth levels
// per side.
func NewHub(source BookSource, interval time.Duration, depth int, logger *slog.Logger) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:   source,
		interval: interval,
		depth:    depth,
		logger:   logger.With(slog.String("component", "ws_hub")),
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil
		case t := <-ticker.C:
			h.broadcast(t.UnixMilli())
		}
	}
}

func (h *Hub) broadcast(ts int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	books := h.source.Books(h.depth)
	for c := range h.clients {
		data, err := json.Marshal(Envelope{Type: "books", TS: ts, Payload: c.filter(books)})
		if err != nil {
			h.logger.Error("ws: marshal books", slog.String("error", err.Error()))
			return
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping frame for slow client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("total_clients", n))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))
}

// HandleWS upgrades the request and registers the client. The optional
// "market" query parameter (comma-separated) sets the initial subscription.
// GET /ws/books
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), markets: map[string]bool{}}
	if q := r.URL.Query().Get("market"); q != "" {
		c.apply(subscribeMsg{Action: "subscribe", Markets: strings.Split(q, ",")})
	} else {
		c.markets["*"] = true
	}

	h.add(c)
	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	markets map[string]bool
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msg.Markets {
		m = strings.TrimSpace(m)
		if m != "*" {
			m = domain.CanonicalMarketID(m)
		}
		if m == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.markets[m] = true
		case "unsubscribe":
			delete(c.markets, m)
		}
	}
}

// filter keeps the books of subscribed markets.
func (c *client) filter(books []domain.BookSummary) []domain.BookSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.markets["*"] {
		return books
	}
	out := make([]domain.BookSummary, 0, len(books))
	for _, b := range books {
		if c.markets[domain.CanonicalMarketID(b.Key.MarketID)] {
			out = append(out, b)
		}
	}
	return out
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if err := json.Unmarshal(message, &msg); err == nil && msg.Action != "" {
			c.apply(msg)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
