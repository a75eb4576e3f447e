package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dayforge/dayforge/internal/observability"
)

// ClientHub manages WebSocket client connections and broadcasts the
// client protocol envelopes to each of them.
type ClientHub struct {
	maxConnections  int
	heartbeatPeriod time.Duration

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan Envelope
}

// NewClientHub constructs a hub capped at maxConnections, heartbeating
// dead connections out every heartbeatPeriod (default 30s).
func NewClientHub(maxConnections int, heartbeatPeriod time.Duration) *ClientHub {
	if heartbeatPeriod <= 0 {
		heartbeatPeriod = 30 * time.Second
	}
	return &ClientHub{
		maxConnections:  maxConnections,
		heartbeatPeriod: heartbeatPeriod,
		clients:         make(map[*websocket.Conn]struct{}),
		register:        make(chan *websocket.Conn),
		unregister:      make(chan *websocket.Conn),
		broadcast:       make(chan Envelope, 256),
	}
}

// Run drives the hub's single-writer loop until ctx is cancelled, at which
// point every client connection is closed.
func (h *ClientHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxConnections {
				h.mu.Unlock()
				conn.Close()
				observability.BroadcastFailures.WithLabelValues("connection_cap").Inc()
				continue
			}
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
			observability.ConnectedClients.Set(float64(h.clientCount()))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			observability.ConnectedClients.Set(float64(h.clientCount()))

		case env := <-h.broadcast:
			h.sendAll(env)

		case <-ticker.C:
			h.sendAll(NewEnvelope("ping", map[string]string{}))
		}
	}
}

func (h *ClientHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendAll writes env to every connected client, dropping any client that
// fails to accept the write within the heartbeat window.
func (h *ClientHub) sendAll(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("relay: marshal envelope %s failed: %v", env.Type, err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(h.heartbeatPeriod))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			observability.BroadcastFailures.WithLabelValues("write_error").Inc()
			go h.Unregister(conn)
		}
	}
}

// Broadcast queues env for delivery to every connected client.
func (h *ClientHub) Broadcast(env Envelope) {
	select {
	case h.broadcast <- env:
	default:
		observability.BroadcastFailures.WithLabelValues("queue_full").Inc()
	}
}

// Register admits a new client connection.
func (h *ClientHub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister drops a client connection.
func (h *ClientHub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

func (h *ClientHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	observability.ConnectedClients.Set(0)
}
