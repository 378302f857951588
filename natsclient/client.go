package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client manages one NATS connection.
type Client struct {
	url    string
	status atomic.Int32
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string

	// Authentication - cleared on close
	username string
	password string
	token    string

	metrics        *metric.Metrics
	onHealthChange func(bool)

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a client. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "url check")
	}
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
		clientName:    "flowcanvas",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	return c, nil
}

// URL returns the server URL.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsHealthy reports whether the client is connected.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// GetConnection returns the underlying connection, or nil.
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(status ConnectionStatus) {
	prev := ConnectionStatus(c.status.Swap(int32(status)))
	if prev == status {
		return
	}
	if c.metrics != nil {
		if status == StatusConnected {
			c.metrics.NATSConnected.Set(1)
		} else {
			c.metrics.NATSConnected.Set(0)
		}
	}
	if c.onHealthChange != nil && (prev == StatusConnected) != (status == StatusConnected) {
		c.onHealthChange(status == StatusConnected)
	}
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.closed.Load() {
				return
			}
			c.setStatus(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "url", c.url, "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setStatus(StatusConnected)
			c.logger.Info("NATS reconnected", "url", c.url)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusClosed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error("NATS async error", "error", err)
		}),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	return opts
}

// Connect establishes the connection and initialises JetStream.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(ErrNotConnected, "Client", "Connect", "client closed")
	}
	c.setStatus(StatusConnecting)
	c.logger.Debug("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}
	if res.err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, res.err),
			"Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(res.conn)
	if err != nil {
		res.conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "initialise JetStream")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

// WaitForConnection blocks until connected or ctx is done.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "WaitForConnection", "wait")
		case <-ticker.C:
		}
	}
}

// Close drains the connection. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	var drainErr error
	if c.conn != nil {
		timeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}
		drained := make(chan error, 1)
		go func() { drained <- c.conn.Drain() }()
		select {
		case err := <-drained:
			if err != nil {
				drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
			}
		case <-time.After(timeout):
			drainErr = errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout), "Client", "Close", "drain")
		case <-ctx.Done():
			drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "drain")
		}
		c.conn.Close()
		c.conn = nil
		c.js = nil
	}

	c.username, c.password, c.token = "", "", ""
	c.setStatus(StatusClosed)
	return drainErr
}

// Publish sends data on subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := c.GetConnection()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Subscribe delivers messages on subject to handler until the client closes.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+subject)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// CreateKeyValueBucket returns the bucket named in cfg, creating it if needed.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	if bucket, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		c.logger.Debug("Using existing KV bucket", "bucket", cfg.Bucket)
		return bucket, nil
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if !isAlreadyExistsError(err) {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "create bucket "+cfg.Bucket)
		}
		// Lost a creation race.
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "access bucket "+cfg.Bucket)
		}
	}
	c.logger.Info("KV bucket ready", "bucket", cfg.Bucket)
	return bucket, nil
}

// GetKeyValueBucket returns an existing bucket.
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}
	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrBucketNotFound) {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrBucketNotFound, name),
				"Client", "GetKeyValueBucket", "bucket lookup")
		}
		return nil, errors.WrapTransient(err, "Client", "GetKeyValueBucket", "bucket lookup")
	}
	return bucket, nil
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "bucket name already in use") ||
		strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "stream name already in use")
}
