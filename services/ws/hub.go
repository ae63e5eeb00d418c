// Package ws maintains the per-short-code WebSocket subscriber registry used
// for live click feeds. No persistence: subscribers only see events emitted
// while connected.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/metrics"
)

// Conn is the write surface the hub needs from a connection. gorilla conns
// are wrapped in Client; tests substitute their own implementation.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client serializes writes to a gorilla connection; the hub may emit from
// many goroutines.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Hub is the subscriber registry. Subscription churn is rare relative to
// emits, so reads take the shared lock.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[Conn]struct{}
	log  *logrus.Entry
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[Conn]struct{}),
		log:  log.WithField("component", "ws-hub"),
	}
}

func (h *Hub) Subscribe(shortCode string, conn Conn) {
	h.mu.Lock()
	set, ok := h.subs[shortCode]
	if !ok {
		set = make(map[Conn]struct{})
		h.subs[shortCode] = set
	}
	set[conn] = struct{}{}
	h.mu.Unlock()

	metrics.WSSubscribers.Inc()
	h.log.WithField("short_code", shortCode).Debug("subscriber added")
}

func (h *Hub) Unsubscribe(shortCode string, conn Conn) {
	h.mu.Lock()
	removed := h.removeLocked(shortCode, conn)
	h.mu.Unlock()
	if removed {
		metrics.WSSubscribers.Dec()
	}
}

// Emit writes payload to every live subscriber of shortCode and returns the
// delivered count. Connections that fail to write are reaped.
func (h *Hub) Emit(shortCode string, payload any) int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.subs[shortCode]))
	for conn := range h.subs[shortCode] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	var dead []Conn
	for _, conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			dead = append(dead, conn)
			continue
		}
		delivered++
		metrics.WSEmits.Inc()
	}

	if len(dead) > 0 {
		h.mu.Lock()
		reaped := 0
		for _, conn := range dead {
			if h.removeLocked(shortCode, conn) {
				reaped++
				conn.Close()
			}
		}
		h.mu.Unlock()
		for i := 0; i < reaped; i++ {
			metrics.WSSubscribers.Dec()
		}
		h.log.WithFields(logrus.Fields{"short_code": shortCode, "reaped": reaped}).Debug("reaped dead subscribers")
	}
	return delivered
}

func (h *Hub) SubscriberCount(shortCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[shortCode])
}

// Stats reports registry shape for the admin surface.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return map[string]any{
		"short_codes": len(h.subs),
		"subscribers": total,
	}
}

// CloseAll disconnects every subscriber; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, set := range h.subs {
		for conn := range set {
			conn.Close()
			metrics.WSSubscribers.Dec()
		}
		delete(h.subs, code)
	}
}

func (h *Hub) removeLocked(shortCode string, conn Conn) bool {
	set, ok := h.subs[shortCode]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.subs, shortCode)
	}
	return true
}
