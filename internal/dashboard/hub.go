package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"defi-risk-lab/internal/domain"
	"defi-risk-lab/internal/logging"
	"defi-risk-lab/internal/observability"
)

const (
	// MaxClients is the maximum number of concurrent websocket connections.
	MaxClients = 1000

	sendBuffer   = 16
	readLimit    = 4 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// EventSnapshot is sent on connect and after every successful refresh.
const EventSnapshot = "snapshot"

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Event is one websocket notification.
type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Records    int       `json:"records"`
	Accuracy   float64   `json:"accuracy"`
	Evaluation string    `json:"evaluation"`
}

// SnapshotEvent builds the notification for snap.
func SnapshotEvent(snap *domain.Snapshot) *Event {
	return &Event{
		Type:       EventSnapshot,
		RunID:      snap.RunID,
		CreatedAt:  snap.CreatedAt,
		Records:    len(snap.Records),
		Accuracy:   snap.Accuracy,
		Evaluation: snap.Evaluation,
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans snapshot notifications out to websocket clients.
// Clients only learn that a new snapshot exists; they fetch data over the JSON API.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan *Event
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run exits
	maxClients int

	mu     sync.RWMutex
	latest []byte

	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger logrus.FieldLogger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan *Event, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		maxClients: MaxClients,
		logger:     logger.WithField("component", "ws_hub"),
		metrics:    metrics,
	}
}

// Run is the hub loop. It closes every client connection when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.metrics.SetWSClients(0)
			h.logger.Info("websocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			latest := h.latest
			h.mu.Unlock()
			if latest != nil {
				c.send <- latest
			}
			h.metrics.SetWSClients(n)
			h.logger.WithField("clients", n).Debug("client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
			h.logger.WithField("clients", n).Debug("client disconnected")

		case event := <-h.broadcast:
			msg, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).Warn("encode event")
				continue
			}
			h.mu.Lock()
			h.latest = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client
					close(c.send)
					delete(h.clients, c)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWSClients(n)
		}
	}
}

// Publish announces a new snapshot to all clients and remembers it for new ones.
func (h *Hub) Publish(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	select {
	case h.broadcast <- SnapshotEvent(snap):
	default:
		h.logger.WithField("run_id", snap.RunID).Warn("broadcast channel full, dropping event")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and registers the connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if h.Clients() >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump drains incoming frames so pongs and close frames are processed.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
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
				c.hub.logger.WithError(err).Debug("websocket write error")
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
