package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/flowcanvas/metric"
)

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithMaxReconnects sets the reconnect limit; -1 reconnects forever.
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("reconnect wait cannot be negative")
		}
		c.reconnectWait = d
		return nil
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds Close.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("drain timeout must be positive")
		}
		c.drainTimeout = d
		return nil
	}
}

// WithName sets the connection name shown in server monitoring.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithCredentials sets user/password authentication.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets token authentication.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection status to the registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}

// WithHealthChangeCallback is called when the client gains or loses its connection.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}
