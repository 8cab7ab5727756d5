// Package stream pushes marketplace events and snapshots to websocket
// clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/market"
	"github.com/xtrntr/tokenmarket/internal/models"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// MessageSnapshot tags the periodic state messages. Event messages carry the
// event type instead.
const MessageSnapshot = "snapshot"

// Source is the engine state read by the hub.
type Source interface {
	Status() market.Status
	CurrentRound() (models.Round, error)
}

// Snapshot is the state pushed on connect and on every tick.
type Snapshot struct {
	Type   string        `json:"type"`
	Status market.Status `json:"status"`
	Round  *models.Round `json:"round,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are filtered by the CORS middleware
	},
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to the connected clients. It implements market.Sink:
// Publish never blocks, a client that can't keep up is disconnected.
type Hub struct {
	source Source

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(source Source) *Hub {
	return &Hub{
		source:  source,
		clients: make(map[string]*client),
	}
}

// Publish broadcasts an event envelope.
func (h *Hub) Publish(event models.Event) {
	data, err := json.Marshal(models.Wrap(event))
	if err != nil {
		log.WithError(err).Warn("failed to marshal event")
		return
	}
	h.broadcast(data)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.WithField("client", c.id).Warn("websocket client too slow, disconnecting")
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) snapshot() ([]byte, error) {
	snap := Snapshot{Type: MessageSnapshot, Status: h.source.Status()}
	if r, err := h.source.CurrentRound(); err == nil {
		snap.Round = &r
	}
	return json.Marshal(snap)
}

// ServeWS upgrades the request and streams to the client until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	logger := log.WithField("client", c.id)

	// Send initial snapshot
	data, err := h.snapshot()
	if err != nil {
		logger.WithError(err).Warn("failed to marshal snapshot")
		conn.Close()
		return
	}
	c.send <- data
	h.register(c)
	logger.Debug("websocket client connected")

	go h.writePump(c)

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	logger.Debug("websocket client disconnected")
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.WithError(err).WithField("client", c.id).Debug("failed to send message")
			h.unregister(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Run broadcasts a snapshot every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			data, err := h.snapshot()
			if err != nil {
				log.WithError(err).Warn("failed to marshal snapshot")
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
