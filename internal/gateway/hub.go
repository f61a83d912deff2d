// Package gateway exposes the engine's event flow to dashboard clients over
// WebSocket. The hub fans bus events and admitted signals out to connected
// clients; slow clients lose messages rather than backpressuring the engine.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub manages WebSocket clients and the event fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	// last envelope per event type, replayed to newly connected clients
	latest map[string]json.RawMessage
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]json.RawMessage),
	}
}

// Run consumes a bus subscription until the channel closes.
func (h *Hub) Run(events <-chan gatebus.Event) {
	for ev := range events {
		h.BroadcastEvent(ev)
	}
}

// BroadcastEvent fans one bus event out to every client.
func (h *Hub) BroadcastEvent(ev gatebus.Event) {
	h.broadcast("event:"+ev.Type, ev)
}

// BroadcastSignal fans one admitted trade signal out to every client.
func (h *Hub) BroadcastSignal(sig *model.TradeSignal) {
	h.broadcast("signal", sig)
}

func (h *Hub) broadcast(channel string, payload any) {
	h.mu.Lock()
	h.seq++
	envelope, err := json.Marshal(map[string]any{
		"channel": channel,
		"seq":     h.seq,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"data":    payload,
	})
	if err != nil {
		h.mu.Unlock()
		log.Printf("[gateway] marshal envelope: %v", err)
		return
	}
	h.latest[channel] = envelope
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- envelope:
		default:
			// client full, drop
		}
	}
}

// ServeWS upgrades an HTTP request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}
	c := &Client{conn: conn, send: make(chan []byte, 256), hub: h}

	h.mu.Lock()
	h.clients[c] = true
	snapshot := make([]json.RawMessage, 0, len(h.latest))
	for _, env := range h.latest {
		snapshot = append(snapshot, env)
	}
	h.mu.Unlock()

	// replay the latest envelope per channel so the dashboard has state
	for _, env := range snapshot {
		select {
		case c.send <- env:
		default:
		}
	}

	log.Printf("[gateway] ws client connected (%d total)", h.ClientCount())
	go c.writePump()
	go c.readPump()
}

// RemoveClient drops a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
