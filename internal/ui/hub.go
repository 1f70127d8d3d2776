package ui

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/resqfreeze/internal/monitor"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events may queue for one client before it is
	// dropped as too slow.
	sendBuffer = 16
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from anywhere on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans monitor events out to websocket clients. It implements
// monitor.Publisher. Each client has its own queue and writer goroutine, so
// Publish never waits on the network.
type Hub struct {
	// snapshot returns the events sent to a client right after it connects.
	snapshot func() []monitor.Event
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan monitor.Event
}

// NewHub creates a Hub. snapshot may be nil.
func NewHub(snapshot func() []monitor.Event, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{snapshot: snapshot, logger: logger, clients: make(map[*client]struct{})}
}

// Publish queues e for every client. A client whose queue is full is dropped.
func (h *Hub) Publish(e monitor.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			h.logger.Debug("dropping slow websocket client", "remote", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// removeLocked unregisters c and closes its queue; the writer then closes
// the connection.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeHTTP upgrades the connection, sends the current snapshot and keeps
// the client registered until it disconnects. Inbound messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var initial []monitor.Event
	if h.snapshot != nil {
		initial = h.snapshot()
	}

	c := &client{conn: conn, send: make(chan monitor.Event, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c, initial)

	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop sends the snapshot and then queued events until the queue is
// closed or a write fails. It owns all writes to c.conn.
func (h *Hub) writeLoop(c *client, initial []monitor.Event) {
	defer c.conn.Close()
	for _, e := range initial {
		if err := writeEvent(c.conn, e); err != nil {
			return
		}
	}
	for e := range c.send {
		if err := writeEvent(c.conn, e); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e monitor.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
