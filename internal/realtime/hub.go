package realtime

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
	"go-messenger/internal/metrics"
	"go-messenger/internal/web"
)

type HubConfig struct {
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// CheckOrigin vets the Origin header of upgrade requests. Nil allows all.
	CheckOrigin func(r *http.Request) bool
}

// Hub owns the set of open connections. It upgrades requests, attaches new
// connections and detaches closed ones.
type Hub struct {
	registry   *Registry
	router     *Router
	upgrader   websocket.Upgrader
	sendBuffer int

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewHub(registry *Registry, router *Router, cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		registry:   registry,
		router:     router,
		sendBuffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		conns: make(map[*Conn]struct{}),
	}
}

// ServeHTTP upgrades an authenticated request to a WebSocket connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		web.Error(w, r, apperr.Unauthorized("missing authentication token"))
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(h, ws, identity, h.sendBuffer)
	c.limiter = h.router.newLimiter()
	h.attach(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) attach(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	logging.Debug().Str("conn_id", c.id).Int64("user_id", c.UserID()).Msg("connection opened")
}

// detach removes c from every room and closes its queue. It is safe to call
// more than once.
func (h *Hub) detach(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if !ok {
		return
	}

	// Closing first makes any join still in flight a no-op.
	c.close()
	rooms := h.registry.LeaveAll(c)

	metrics.ConnectionsActive.Dec()
	logging.Debug().Str("conn_id", c.id).Int64("user_id", c.UserID()).Int("rooms_left", len(rooms)).Msg("connection closed")
}

// ConnCount returns the number of attached connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Serve blocks until ctx is cancelled, then detaches every connection.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	open := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		open = append(open, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		h.detach(c)
	}
	logging.Info().Int("connections", len(open)).Msg("hub stopped")
	return ctx.Err()
}

func (h *Hub) String() string { return "realtime-hub" }
