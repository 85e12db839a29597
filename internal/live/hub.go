// Package live is the optional, fire-and-forget websocket broadcaster:
// it pushes PublishLOB snapshots (tagged by session id) to connected
// viewers. Never on the matching hot path — a send to a slow client is
// dropped, never blocked on. Grounded on
// uhyunpark-hyperlicked/pkg/api/websocket.go's Hub/Client
// register-unregister-broadcast pattern, with zap in place of the
// teacher's log package.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is one broadcast unit: a session's LOB snapshot at a point in
// simulated time, rendered to the compact form callers already have
// (exchange.Exchange.LOBFrameString's line, or any JSON-able summary).
type Frame struct {
	SessionID string  `json:"session_id"`
	Time      float64 `json:"time"`
	Line      string  `json:"line"`
}

// Hub maintains the set of connected viewers and multiplexes Frame
// broadcasts to all of them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Frame
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	log        *zap.SugaredLogger
}

// NewHub creates an idle hub; call Run to start its dispatch loop.
func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log,
	}
}

// Run blocks, dispatching registrations and broadcasts until stop is
// closed. Intended to run in its own goroutine for the process
// lifetime.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Debugw("live viewer connected", "total", len(h.clients))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case frame := <-h.broadcast:
			data, err := json.Marshal(frame)
			if err != nil {
				h.log.Errorw("marshal live frame", "error", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// slow client: drop the frame rather than block the
					// broadcaster, matching spec.md's fire-and-forget rule.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish enqueues a frame for broadcast. Never blocks: a full
// broadcast buffer silently drops the frame.
func (h *Hub) Publish(f Frame) {
	select {
	case h.broadcast <- f:
	default:
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting connection as a viewer. Viewers are read-only: any message
// they send is discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
