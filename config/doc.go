// Package config loads flowcanvas configuration.
//
// Configuration is built in layers: Default, then each file added with
// AddLayer (JSON or YAML, merged field by field), then environment
// overrides prefixed with FLOWCANVAS_, then validation.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json") // overrides base
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Durations may be written as Go duration strings ("30s", "2m") or with a
// day suffix ("7d").
//
// # Sections
//
//	engine     remote engine URL, timeout, rate limit, poll interval, retry
//	store      flow storage backend: engine, nats or sqlite
//	catalogue  instruction source: engine or file
//	gateway    run status WebSocket server
//	metrics    Prometheus endpoint
//	log        level and format
//
// # Environment Overrides
//
//	FLOWCANVAS_ENGINE_URL, FLOWCANVAS_ENGINE_TIMEOUT, FLOWCANVAS_ENGINE_RATE_LIMIT,
//	FLOWCANVAS_ENGINE_POLL_INTERVAL, FLOWCANVAS_STORE_BACKEND, FLOWCANVAS_SQLITE_PATH,
//	FLOWCANVAS_NATS_URL, FLOWCANVAS_NATS_BUCKET, FLOWCANVAS_NATS_USERNAME,
//	FLOWCANVAS_NATS_PASSWORD, FLOWCANVAS_NATS_TOKEN, FLOWCANVAS_CATALOGUE_SOURCE,
//	FLOWCANVAS_CATALOGUE_PATH, FLOWCANVAS_GATEWAY_ENABLED, FLOWCANVAS_GATEWAY_ADDR,
//	FLOWCANVAS_GATEWAY_PUBLISH_NATS, FLOWCANVAS_METRICS_ENABLED, FLOWCANVAS_METRICS_PORT,
//	FLOWCANVAS_LOG_LEVEL, FLOWCANVAS_LOG_FORMAT
//
// # Thread-Safe Access
//
// SafeConfig wraps a Config behind an RWMutex. Get returns a deep copy, so
// callers can never mutate shared state:
//
//	safe := config.NewSafeConfig(cfg)
//	current := safe.Get()
//
// Config files are read through size, depth and path traversal checks
// before they are parsed.
package config
