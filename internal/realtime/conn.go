package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"go-messenger/internal/auth"
	"go-messenger/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 64 << 10
)

// Conn is one authenticated WebSocket session. The hub owns its lifecycle;
// rooms only hold references to it.
type Conn struct {
	id       string
	identity auth.Identity
	hub      *Hub
	ws       *websocket.Conn
	limiter  *rate.Limiter

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newConn(hub *Hub, ws *websocket.Conn, identity auth.Identity, buffer int) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		identity: identity,
		hub:      hub,
		ws:       ws,
		send:     make(chan []byte, buffer),
	}
}

func (c *Conn) ID() string { return c.id }

// UserID is the authenticated user behind the connection.
func (c *Conn) UserID() int64 { return c.identity.ID }

// deliver queues an encoded frame without blocking. It reports false when
// the queue is full or the connection is already closed; the frame is
// dropped in both cases.
func (c *Conn) deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close stops further deliveries and lets writePump drain and exit.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump decodes commands from the socket and runs them in arrival order.
// When the socket goes away the connection is detached from the hub, which
// drops it from every room before anything else is delivered.
func (c *Conn) readPump() {
	defer func() {
		c.hub.detach(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("conn_id", c.id).Msg("websocket read failed")
			}
			return
		}
		c.hub.router.dispatch(c, message)
	}
}

// writePump is the only writer on the socket. Each queued frame goes out as
// its own text message; a ping is sent every pingPeriod.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
