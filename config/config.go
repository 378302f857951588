package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/flowcanvas/pkg/retry"
	"github.com/c360/flowcanvas/pkg/security"
)

// Store backends
const (
	StoreEngine = "engine" // flows live on the remote engine
	StoreNATS   = "nats"   // NATS JetStream KV bucket
	StoreSQLite = "sqlite" // local SQLite file
)

// Catalogue sources
const (
	CatalogueEngine = "engine"
	CatalogueFile   = "file"
)

// Config is the complete flowcanvas configuration.
type Config struct {
	Version   string          `json:"version,omitempty"`
	Engine    EngineConfig    `json:"engine"`
	Store     StoreConfig     `json:"store"`
	Catalogue CatalogueConfig `json:"catalogue"`
	Gateway   GatewayConfig   `json:"gateway"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       LogConfig       `json:"log"`
}

// EngineConfig describes the remote execution engine.
type EngineConfig struct {
	BaseURL       string        `json:"base_url"        validate:"required,url"`
	Timeout       time.Duration `json:"timeout"         validate:"gt=0"`
	RateLimit     float64       `json:"rate_limit"      validate:"gte=0"` // requests per second, 0 = unlimited
	Burst         int           `json:"burst"           validate:"gte=0"`
	PollInterval  time.Duration `json:"poll_interval"   validate:"gt=0"`
	MaxPollErrors int           `json:"max_poll_errors" validate:"gte=1"`
	Retry         RetryConfig   `json:"retry"`

	TLS security.ClientTLSConfig `json:"tls,omitempty"` // applies to https base URLs
}

// RetryConfig is the backoff used for idempotent engine reads.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"  validate:"gte=1,lte=20"`
	InitialDelay time.Duration `json:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `json:"max_delay"     validate:"gtefield=InitialDelay"`
	Multiplier   float64       `json:"multiplier"    validate:"gte=1"`
	Jitter       bool          `json:"jitter"`
}

// Retry converts r to a pkg/retry configuration.
func (r RetryConfig) Retry() retry.Config {
	return retry.Config{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		AddJitter:    r.Jitter,
	}
}

// StoreConfig selects where flows are saved.
type StoreConfig struct {
	Backend    string     `json:"backend"               validate:"oneof=engine nats sqlite"`
	NATS       NATSConfig `json:"nats"`
	SQLitePath string     `json:"sqlite_path,omitempty" validate:"required_if=Backend sqlite"`
	// CacheSize bounds the in-process cache of loaded flows; 0 disables it.
	CacheSize int `json:"cache_size" validate:"min=0,max=10000"`
}

// NATSConfig defines NATS connection settings. It is used by the NATS
// store and by the status gateway's publisher.
type NATSConfig struct {
	URL           string        `json:"url,omitempty"`
	Bucket        string        `json:"bucket,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	DrainTimeout  time.Duration `json:"drain_timeout,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// CatalogueConfig selects where instruction definitions come from.
type CatalogueConfig struct {
	Source string `json:"source"         validate:"oneof=engine file"`
	Path   string `json:"path,omitempty" validate:"required_if=Source file"`
}

// GatewayConfig configures the run status WebSocket server.
type GatewayConfig struct {
	Enabled      bool          `json:"enabled"`
	Addr         string        `json:"addr"          validate:"required,hostname_port"`
	Path         string        `json:"path"          validate:"startswith=/"`
	PingInterval time.Duration `json:"ping_interval" validate:"gt=0"`
	PublishNATS  bool          `json:"publish_nats"`

	TLS security.ServerTLSConfig `json:"tls,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port" validate:"gte=0,lte=65535"`
	Path    string `json:"path" validate:"startswith=/"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level"  validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json text"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseURL:       "http://localhost:8000",
			Timeout:       30 * time.Second,
			PollInterval:  time.Second,
			MaxPollErrors: 5,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Multiplier:   2.0,
				Jitter:       true,
			},
		},
		Store: StoreConfig{
			Backend:   StoreEngine,
			CacheSize: 64,
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				Bucket:        "flowcanvas_flows",
				MaxReconnects: -1,
				ReconnectWait: 2 * time.Second,
			},
			SQLitePath: "flowcanvas.db",
		},
		Catalogue: CatalogueConfig{
			Source: CatalogueEngine,
		},
		Gateway: GatewayConfig{
			Addr:         ":8081",
			Path:         "/ws",
			PingInterval: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns a JSON representation of the config with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.Store.NATS.Password != "" {
		masked.Store.NATS.Password = "***"
	}
	if masked.Store.NATS.Token != "" {
		masked.Store.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeConfigFile(path, data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
