package engineclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/metric"
	"github.com/c360/flowcanvas/pkg/retry"
)

var _ flowengine.Engine = (*Client)(nil)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 32 << 20

// Client is an HTTP client for the execution engine. It is safe for
// concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Config
	logger  *slog.Logger
	metrics *clientMetrics
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.http = hc
		return nil
	}
}

// WithTLSConfig sets the TLS configuration used for https engines.
func WithTLSConfig(tc *tls.Config) Option {
	return func(c *Client) error {
		if tc == nil {
			return nil
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tc
		c.http.Transport = transport
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.http.Timeout = d
		return nil
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rate limit requires positive rps and burst, got %v/%d", rps, burst)
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithRetry sets the backoff used for idempotent reads. Only transient
// errors are retried regardless of cfg.Retryable.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) error {
		c.retry = cfg
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics registers request metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Client) error {
		m, err := newClientMetrics(registry)
		if err != nil {
			return err
		}
		c.metrics = m
		return nil
	}
}

// New creates a client for the engine at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.WrapInvalid(err, "engineclient", "New", "base url parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"engineclient", "New", "base url check")
	}
	if u.Host == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: base url has no host", errors.ErrInvalidConfig),
			"engineclient", "New", "base url check")
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
		retry:   retry.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "engineclient", "New", "option apply")
		}
	}
	c.retry.Retryable = errors.IsTransient
	return c, nil
}

// BaseURL returns the engine address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	StatusCode int
	Detail     string
	Issues     []flowengine.Issue
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("engine returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Detail)
}

// request describes one call. endpoint is the metrics label.
type request struct {
	method   string
	path     string
	endpoint string
	body     any
}

// do performs req once and returns the 2xx response body. Non-2xx answers
// come back as a classified *StatusError. Every failed attempt is counted
// in the core error metric.
func (c *Client) do(ctx context.Context, req request) (_ []byte, err error) {
	defer func() {
		if err != nil {
			c.metrics.recordError(err)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrRateLimited, err), "engineclient", req.endpoint, "rate limit wait")
	}

	var payload io.Reader
	if req.body != nil {
		data, err := encodeBody(req.body)
		if err != nil {
			return nil, errors.WrapInvalid(err, "engineclient", req.endpoint, "request encode")
		}
		payload = bytes.NewReader(data)
	}

	target := c.baseURL.JoinPath(req.path)
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "engineclient", req.endpoint, "request build")
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.recordRequest(req.endpoint, "error", time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "engineclient", req.endpoint, "http request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.recordRequest(req.endpoint, statusClass(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "engineclient", req.endpoint, "response read")
	}

	c.logger.Debug("Engine request", "method", req.method, "path", req.path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyStatus(req.endpoint, newStatusError(resp.StatusCode, body))
}

// get performs an idempotent read with retry on transient errors.
func (c *Client) get(ctx context.Context, path, endpoint string) ([]byte, error) {
	body, err := retry.DoWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.do(ctx, request{method: http.MethodGet, path: path, endpoint: endpoint})
	})
	if err != nil {
		c.logger.Warn("Engine read failed", "endpoint", endpoint, "error", err)
	}
	return body, err
}

func encodeBody(v any) ([]byte, error) {
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func newStatusError(code int, body []byte) *StatusError {
	se := &StatusError{StatusCode: code}
	var wire struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		se.Detail = strings.TrimSpace(string(body))
		return se
	}
	se.Detail, se.Issues = parseDetail(wire.Detail)
	if se.Detail == "" {
		se.Detail = firstNonEmpty(wire.Message, wire.Error)
	}
	return se
}

// parseDetail reads a detail field that is either a string or a list of
// {"msg": ..., "loc": [...]} objects.
func parseDetail(raw json.RawMessage) (string, []flowengine.Issue) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var items []struct {
		Msg  string `json:"msg"`
		Type string `json:"type"`
		Loc  []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		issues := make([]flowengine.Issue, 0, len(items))
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msg := it.Msg
			if len(it.Loc) > 0 {
				msg = fmt.Sprintf("%s: %s", joinLoc(it.Loc), it.Msg)
			}
			issues = append(issues, flowengine.Issue{Code: it.Type, Message: msg})
			msgs = append(msgs, msg)
		}
		return strings.Join(msgs, "; "), issues
	}
	return strings.TrimSpace(string(raw)), nil
}

func joinLoc(loc []any) string {
	parts := make([]string, 0, len(loc))
	for _, p := range loc {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ".")
}

func classifyStatus(endpoint string, se *StatusError) error {
	switch {
	case se.StatusCode == http.StatusTooManyRequests:
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrRateLimited, se), "engineclient", endpoint, "engine call")
	case se.StatusCode >= 500:
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, se), "engineclient", endpoint, "engine call")
	case se.StatusCode == http.StatusConflict:
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrVersionConflict, se), "engineclient", endpoint, "engine call")
	default:
		return errors.WrapInvalid(se, "engineclient", endpoint, "engine call")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
