package statusws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/gateway"
	"github.com/c360/flowcanvas/metric"
)

// SubjectPrefix prefixes the NATS subject of every published run update.
const SubjectPrefix = "flowcanvas.run."

// MessageTypeRunUpdate is the type of every message the hub sends.
const MessageTypeRunUpdate = "run_update"

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultSendBuffer   = 16
	publishTimeout      = 2 * time.Second
	maxClientMessage    = 512
)

// Disconnect reasons
const (
	reasonNormal   = "normal"
	reasonSlow     = "slow"
	reasonError    = "write_error"
	reasonShutdown = "shutdown"
)

// Publisher forwards run updates to a message bus. *natsclient.Client
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Message wraps a snapshot on the wire.
type Message struct {
	Type      string              `json:"type"`
	ID        string              `json:"id"`
	Timestamp int64               `json:"timestamp"`
	Payload   flowengine.Snapshot `json:"payload"`
}

// Option configures a Hub.
type Option func(*Hub) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) error {
		if logger != nil {
			h.logger = logger
		}
		return nil
	}
}

// WithMetrics registers hub metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(h *Hub) error {
		m, err := newHubMetrics(registry)
		if err != nil {
			return err
		}
		h.metrics = m
		return nil
	}
}

// WithPublisher also publishes every update to SubjectPrefix+flow id.
func WithPublisher(p Publisher) Option {
	return func(h *Hub) error {
		h.publisher = p
		return nil
	}
}

// WithPingInterval sets how often idle clients are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) error {
		if d <= 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: ping interval must be positive", errors.ErrInvalidConfig),
				"Hub", "WithPingInterval", "option check")
		}
		h.pingInterval = d
		return nil
	}
}

// WithSendBuffer sets how many messages may queue for one client before it
// is dropped as too slow.
func WithSendBuffer(n int) Option {
	return func(h *Hub) error {
		if n <= 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: send buffer must be positive", errors.ErrInvalidConfig),
				"Hub", "WithSendBuffer", "option check")
		}
		h.sendBuffer = n
		return nil
	}
}

// WithCheckOrigin replaces the origin check of the WebSocket upgrade.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) error {
		h.upgrader.CheckOrigin = fn
		return nil
	}
}

type client struct {
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	connectedAt time.Time
	closeOnce   sync.Once
}

// Hub broadcasts orchestrator snapshots to WebSocket clients. It is a
// flowengine.Observer and an http.Handler.
type Hub struct {
	upgrader     websocket.Upgrader
	publisher    Publisher
	logger       *slog.Logger
	metrics      *hubMetrics
	pingInterval time.Duration
	writeTimeout time.Duration
	sendBuffer   int

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  []byte
	closed  bool

	seq atomic.Uint64
	wg  sync.WaitGroup
}

var _ flowengine.Observer = (*Hub)(nil)
var _ http.Handler = (*Hub)(nil)
var _ gateway.HTTPHandler = (*Hub)(nil)

// New creates a hub with no clients.
func New(opts ...Option) (*Hub, error) {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:       slog.Default(),
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		sendBuffer:   defaultSendBuffer,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	h.logger = h.logger.With("component", "statusws")
	return h, nil
}

// Subject returns the NATS subject for flowID. Characters NATS treats as
// token separators or wildcards are replaced; unsaved flows share
// "unsaved".
func Subject(flowID string) string {
	if flowID == "" {
		return SubjectPrefix + "unsaved"
	}
	return SubjectPrefix + strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, flowID)
}

// OnRunUpdate implements flowengine.Observer. It never blocks on a client;
// clients whose queue is full are disconnected.
func (h *Hub) OnRunUpdate(s flowengine.Snapshot) {
	h.metrics.update()

	msg := Message{
		Type:      MessageTypeRunUpdate,
		ID:        fmt.Sprintf("run-%d", h.seq.Add(1)),
		Timestamp: time.Now().UnixMilli(),
		Payload:   s,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Encoding run update failed", "run_id", s.RunID, "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.latest = data
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow status client", "remote", c.conn.RemoteAddr().String())
		h.remove(c, reasonSlow)
	}

	if h.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		subject := Subject(s.FlowID)
		if err := h.publisher.Publish(ctx, subject, data); err != nil {
			h.metrics.publishFailed()
			h.logger.Warn("Publishing run update failed", "subject", subject, "error", err)
		}
	}
}

// ServeHTTP upgrades the request and registers the client. The latest
// snapshot, if any, is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "status hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan []byte, h.sendBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if h.latest != nil {
		c.send <- h.latest
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.metrics.connected(count)
	h.logger.Debug("Status client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// RegisterHTTPHandlers mounts the hub at prefix + "/run".
func (h *Hub) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.Handle(strings.TrimSuffix(prefix, "/")+"/run", h)
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c, reasonNormal)

	c.conn.SetReadLimit(maxClientMessage)
	pongWait := h.pingInterval * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer of data frames on c.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c, reasonError)
				return
			}
			h.metrics.sent(len(data))
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c, reasonError)
				return
			}
		}
	}
}

func (h *Hub) remove(c *client, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)

		h.mu.Lock()
		delete(h.clients, c)
		count := len(h.clients)
		h.mu.Unlock()

		if reason == reasonShutdown {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
		}
		_ = c.conn.Close()

		h.metrics.disconnected(reason, count)
		h.logger.Debug("Status client disconnected", "reason", reason,
			"connected_for", time.Since(c.connectedAt).String(), "clients", count)
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their loops to exit. Later
// connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c, reasonShutdown)
	}
	h.wg.Wait()
}
