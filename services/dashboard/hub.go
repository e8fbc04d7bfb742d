package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vegdirect/storefront/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxConnMessage = 512

	// clientBuffer is the per-connection send queue. A dashboard that cannot
	// drain this many events is disconnected instead of stalling the hub.
	clientBuffer = 16
)

// liveEvent is the envelope pushed to connected dashboards.
type liveEvent struct {
	Event   string    `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans order events out to every connected admin dashboard.
type hub struct {
	logger *logging.Logger

	register   chan *liveClient
	unregister chan *liveClient
	broadcast  chan []byte
	clients    map[*liveClient]struct{}
}

func newHub(logger *logging.Logger) *hub {
	return &hub{
		logger:     logger,
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*liveClient]struct{}),
	}
}

// run owns the client set. It is the only goroutine that touches it.
func (h *hub) run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-stop:
			h.closeAll()
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues an event for every connected client. The hub never blocks
// a caller: when the queue is full the event is dropped and logged.
func (h *hub) Broadcast(event string, payload any) {
	msg, err := json.Marshal(liveEvent{Event: event, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		h.logger.WithError(err).Warn("live event marshal failed")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("event", event).Warn("live feed backlogged, event dropped")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The route is role-gated before the handshake; browsers send the
	// admin's bearer token, not cookies, so origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serve upgrades the request and pumps events until the peer goes away.
func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("live feed upgrade failed")
		return
	}
	c := &liveClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register <- c

	go c.writePump()
	c.readPump(h)
}

// readPump discards inbound frames, keeping the connection's read side alive
// for pong handling and close detection.
func (c *liveClient) readPump(h *hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxConnMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
