// Package hub implements the in-process broadcast coordinator. It is a pure
// fan-out point: frames arriving on one connection are re-emitted verbatim to
// every other connection registered under the same tenant. It never persists,
// re-validates, or acknowledges anything; the REST write path is a separate
// action invoked by the originating client.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kchat-io/kchat/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Broadcaster is the delivery contract consumed by the push endpoint. The
// in-process Hub satisfies it; a broker-backed implementation could replace
// it without touching the client reconciliation contract.
type Broadcaster interface {
	Publish(tenant, sourceID string, payload []byte)
}

// Conn wraps a websocket and coordinates outbound writes via a buffered
// channel. Safe for concurrent use.
type Conn struct {
	ID     string
	Tenant string
	User   string

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

// Hub keeps the per-tenant registry of live push connections.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[*Conn]struct{}
	logger  zerolog.Logger
}

// New constructs an empty Hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		tenants: make(map[string]map[*Conn]struct{}),
		logger:  logger,
	}
}

// Register adds a websocket under the tenant and starts its write loop.
func (h *Hub) Register(tenant, user string, ws *websocket.Conn) *Conn {
	c := &Conn{
		ID:     uuid.NewString(),
		Tenant: tenant,
		User:   user,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.tenants[tenant] == nil {
		h.tenants[tenant] = make(map[*Conn]struct{})
	}
	h.tenants[tenant][c] = struct{}{}
	h.mu.Unlock()

	metrics.PushConnections.Inc()
	go c.writeLoop()
	return c
}

// Unregister removes the connection and closes its socket.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if set, ok := h.tenants[c.Tenant]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			metrics.PushConnections.Dec()
			if len(set) == 0 {
				delete(h.tenants, c.Tenant)
			}
		}
	}
	h.mu.Unlock()

	c.close()
}

// Publish re-emits payload to every other connection in the tenant. Delivery
// is fire-and-forget: a full send buffer drops the frame for that client and
// nothing ever backpressures the caller.
func (h *Hub) Publish(tenant, sourceID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.tenants[tenant] {
		if c.ID == sourceID {
			continue
		}
		select {
		case c.send <- payload:
			metrics.PushDelivered.Inc()
		default:
			metrics.PushDropped.Inc()
			h.logger.Debug().
				Str("tenant", tenant).
				Str("conn", c.ID).
				Msg("push buffer full, frame dropped")
		}
	}
}

// Clients returns the number of live connections for the tenant.
func (h *Hub) Clients(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenant])
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
