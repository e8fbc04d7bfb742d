package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventHandler consumes realtime change events.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent is a phoenix-protocol message from the change feed.
type RealtimeEvent struct {
	Type    string         `json:"type"`
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
	JoinRef string         `json:"join_ref,omitempty"`
}

// Table extracts the affected table name, when present.
func (e *RealtimeEvent) Table() string {
	if t, ok := e.Payload["table"].(string); ok {
		return t
	}
	return ""
}

// Record extracts the new row payload, when present.
func (e *RealtimeEvent) Record() map[string]any {
	if rec, ok := e.Payload["record"].(map[string]any); ok {
		return rec
	}
	return nil
}

// RealtimeClient subscribes to database change feeds over websocket using
// the phoenix channel protocol.
type RealtimeClient struct {
	mu       sync.RWMutex
	client   *Client
	conn     *websocket.Conn
	channels map[string]*Channel
	handlers map[string][]EventHandler
	done     chan struct{}
	ref      int
}

// Channel is one topic subscription.
type Channel struct {
	client  *RealtimeClient
	topic   string
	joined  bool
	joinRef string
}

// NewRealtimeClient builds a realtime client bound to c's project.
func NewRealtimeClient(c *Client) *RealtimeClient {
	return &RealtimeClient{
		client:   c,
		channels: make(map[string]*Channel),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
}

func (r *RealtimeClient) dialURL() string {
	return fmt.Sprintf("%s?apikey=%s&vsn=1.0.0", r.client.realtimeURL, r.client.cfg.AnonKey)
}

// Connect establishes the websocket connection and starts the reader and
// heartbeat loops. Connecting twice is a no-op.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, r.dialURL(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("supabase: realtime dial: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop()
	go r.heartbeatLoop()
	return nil
}

// Disconnect closes the connection. Registered channels are marked
// unjoined so a later Connect can rejoin them.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	close(r.done)

	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.conn.Close()
	r.conn = nil
	for _, ch := range r.channels {
		ch.joined = false
	}
	if err != nil {
		return fmt.Errorf("supabase: realtime close: %w", err)
	}
	return nil
}

// Connected reports whether the websocket is up.
func (r *RealtimeClient) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil
}

// Channel returns or creates the channel for topic.
func (r *RealtimeClient) Channel(topic string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}
	ch := &Channel{client: r, topic: topic}
	r.channels[topic] = ch
	return ch
}

// Subscribe joins the channel's topic.
func (c *Channel) Subscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if c.joined {
		return nil
	}
	if c.client.conn == nil {
		return fmt.Errorf("supabase: realtime not connected")
	}

	c.client.ref++
	ref := fmt.Sprintf("%d", c.client.ref)
	c.joinRef = ref

	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_join",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := c.client.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("supabase: realtime join %s: %w", c.topic, err)
	}
	c.joined = true
	return nil
}

// Unsubscribe leaves the channel's topic and drops it from the client.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if !c.joined {
		return nil
	}
	c.client.ref++
	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      fmt.Sprintf("%d", c.client.ref),
		"join_ref": c.joinRef,
	}
	if c.client.conn != nil {
		if err := c.client.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("supabase: realtime leave %s: %w", c.topic, err)
		}
	}
	c.joined = false
	delete(c.client.channels, c.topic)
	return nil
}

// On registers a handler for one event type on this channel.
func (c *Channel) On(event string, handler EventHandler) *Channel {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()
	key := c.topic + ":" + event
	c.client.handlers[key] = append(c.client.handlers[key], handler)
	return c
}

// OnInsert registers a handler for row inserts.
func (c *Channel) OnInsert(handler EventHandler) *Channel { return c.On("INSERT", handler) }

// OnUpdate registers a handler for row updates.
func (c *Channel) OnUpdate(handler EventHandler) *Channel { return c.On("UPDATE", handler) }

// OnDelete registers a handler for row deletes.
func (c *Channel) OnDelete(handler EventHandler) *Channel { return c.On("DELETE", handler) }

// OnAll registers a handler for every change type.
func (c *Channel) OnAll(handler EventHandler) *Channel {
	c.On("INSERT", handler)
	c.On("UPDATE", handler)
	c.On("DELETE", handler)
	return c
}

func (r *RealtimeClient) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var event RealtimeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		r.dispatch(&event)
	}
}

func (r *RealtimeClient) dispatch(event *RealtimeEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eventType := event.Event
	if t, ok := event.Payload["type"].(string); ok {
		eventType = t
	}
	for _, handler := range r.handlers[event.Topic+":"+eventType] {
		go handler(event)
	}
}

// heartbeatLoop keeps the phoenix connection alive every 30s.
func (r *RealtimeClient) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				r.ref++
				msg := map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     fmt.Sprintf("%d", r.ref),
				}
				r.conn.WriteJSON(msg)
			}
			r.mu.Unlock()
		}
	}
}

// =============================================================================
// Table change subscriptions
// =============================================================================

// ChangeConfig selects which table changes to receive.
type ChangeConfig struct {
	Event  string // INSERT, UPDATE, DELETE or *
	Schema string
	Table  string
	Filter string // e.g. "status=eq.pending"
}

// SubscribeToChanges joins a table change topic and routes events to
// handler.
func (r *RealtimeClient) SubscribeToChanges(ctx context.Context, cfg ChangeConfig, handler EventHandler) (*Channel, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}
	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	ch := r.Channel(topic)
	switch cfg.Event {
	case "INSERT":
		ch.OnInsert(handler)
	case "UPDATE":
		ch.OnUpdate(handler)
	case "DELETE":
		ch.OnDelete(handler)
	default:
		ch.OnAll(handler)
	}
	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// =============================================================================
// Polling fallback
// =============================================================================

// ChangePoller approximates a change feed for deployments where the
// websocket endpoint is blocked. It polls a table's updated_at column and
// emits synthetic UPDATE events for rows newer than the previous sweep.
type ChangePoller struct {
	client   *Client
	table    string
	interval time.Duration
	handler  EventHandler

	mu    sync.Mutex
	since time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewChangePoller polls table every interval, starting from now.
func NewChangePoller(c *Client, table string, interval time.Duration, handler EventHandler) *ChangePoller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ChangePoller{
		client:   c,
		table:    table,
		interval: interval,
		handler:  handler,
		since:    time.Now().UTC(),
		stop:     make(chan struct{}),
	}
}

// Start runs the polling loop until Stop or ctx cancellation.
func (p *ChangePoller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.sweep(ctx)
			}
		}
	}()
}

// Stop halts the polling loop.
func (p *ChangePoller) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *ChangePoller) sweep(ctx context.Context) {
	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	var rows []map[string]any
	_, err := p.client.DB.From(p.table).
		Select().
		Gt("updated_at", since.Format(time.RFC3339)).
		Order("updated_at", OrderAsc).
		Limit(100).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return
	}
	for _, row := range rows {
		if ts, ok := row["updated_at"].(string); ok {
			if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil && parsed.After(since) {
				since = parsed
			}
		}
		p.handler(&RealtimeEvent{
			Event: "UPDATE",
			Topic: fmt.Sprintf("realtime:public:%s", p.table),
			Payload: map[string]any{
				"type":   "UPDATE",
				"table":  p.table,
				"record": row,
			},
		})
	}

	p.mu.Lock()
	p.since = since
	p.mu.Unlock()
}
