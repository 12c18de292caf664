// Package realtime pushes tenant-scoped events to connected staff screens
// over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"restopos/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Event is the frame sent to clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type message struct {
	tenantID uint
	data     []byte
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	tenantID uint
	userID   uint
}

// Hub owns every connection. All map access happens on the Run goroutine.
type Hub struct {
	clients    map[uint]map[*client]bool
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

func NewHub(log *logger.Logger, allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		clients:    make(map[uint]map[*client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		log: log.WithComponent("realtime"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[uint]map[*client]bool)
			return

		case c := <-h.register:
			set := h.clients[c.tenantID]
			if set == nil {
				set = make(map[*client]bool)
				h.clients[c.tenantID] = set
			}
			set[c] = true
			h.log.Debug("client connected", "tenant_id", c.tenantID, "user_id", c.userID)

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.broadcast:
			for c := range h.clients[m.tenantID] {
				select {
				case c.send <- m.data:
				default:
					// Slow consumer; it reconnects and reloads.
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	set := h.clients[c.tenantID]
	if !set[c] {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.tenantID)
	}
	h.log.Debug("client disconnected", "tenant_id", c.tenantID, "user_id", c.userID)
}

// Publish queues an event for every client of the tenant. It never blocks
// the caller; when the queue is full the event is dropped.
func (h *Hub) Publish(tenantID uint, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("encode event", "type", event, "error", err)
		return
	}
	data, err := json.Marshal(Event{Type: event, Payload: body})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message{tenantID: tenantID, data: data}:
	default:
		h.log.Warn("event queue full, dropping event", "type", event, "tenant_id", tenantID)
	}
}

// Serve upgrades the request and attaches the connection to the tenant.
// Authentication happens before this is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID, userID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), tenantID: tenantID, userID: userID}

	hello, _ := json.Marshal(Event{Type: "hello", Payload: json.RawMessage(`{"ok":true}`)})
	c.send <- hello
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump only drains control frames; clients never send commands.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
