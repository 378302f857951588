package main

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/config"
	"github.com/c360/flowcanvas/editor"
	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/engineclient"
	"github.com/c360/flowcanvas/flowstore"
	"github.com/c360/flowcanvas/gateway"
	"github.com/c360/flowcanvas/gateway/statusws"
	"github.com/c360/flowcanvas/health"
	"github.com/c360/flowcanvas/metric"
	"github.com/c360/flowcanvas/natsclient"
	"github.com/c360/flowcanvas/pkg/tlsutil"
)

// app holds the collaborators every command works with.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	source    catalogue.Source
	catalogue *catalogue.Catalogue
	store     flowstore.Store
	executor  flowengine.Executor
	history   historyReader
	nats      *natsclient.Client

	closers []func(ctx context.Context) error
}

// historyReader lists past runs of a stored flow.
type historyReader interface {
	History(ctx context.Context, flowID string) ([]engineclient.HistoryEntry, error)
}

// newApp connects the engine client, the flow store and the catalogue
// selected by cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
	}

	engineTLS, err := engineTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := engineclient.New(cfg.Engine.BaseURL,
		engineclient.WithTLSConfig(engineTLS),
		engineclient.WithTimeout(cfg.Engine.Timeout),
		engineclient.WithRateLimit(cfg.Engine.RateLimit, cfg.Engine.Burst),
		engineclient.WithRetry(cfg.Engine.Retry.Retry()),
		engineclient.WithLogger(logger),
		engineclient.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine client: %w", err)
	}
	a.executor = client
	a.history = client

	if needsNATS(cfg) {
		if err := a.connectNATS(ctx); err != nil {
			a.Close(5 * time.Second)
			return nil, err
		}
	}

	if err := a.setupStore(ctx, client); err != nil {
		a.Close(5 * time.Second)
		return nil, err
	}

	var source catalogue.Source = client.CatalogueSource()
	if cfg.Catalogue.Source == config.CatalogueFile {
		source = catalogue.FileSource{Path: cfg.Catalogue.Path}
	}
	a.source = source
	a.catalogue, err = catalogue.New(source,
		catalogue.WithLogger(logger),
		catalogue.WithMetrics(a.metrics),
		catalogue.WithRetry(cfg.Engine.Retry.Retry()),
	)
	if err != nil {
		a.Close(5 * time.Second)
		return nil, fmt.Errorf("create catalogue: %w", err)
	}
	return a, nil
}

// engineTLSConfig returns nil for plain http engines.
func engineTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if !strings.HasPrefix(cfg.Engine.BaseURL, "https://") {
		return nil, nil
	}
	tc, err := tlsutil.LoadClientTLSConfig(cfg.Engine.TLS)
	if err != nil {
		return nil, fmt.Errorf("engine TLS: %w", err)
	}
	return tc, nil
}

func needsNATS(cfg *config.Config) bool {
	return cfg.Store.Backend == config.StoreNATS || (cfg.Gateway.Enabled && cfg.Gateway.PublishNATS)
}

// connectNATS connects and waits for the connection to be ready
func (a *app) connectNATS(ctx context.Context) error {
	nc := a.cfg.Store.NATS
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(a.metrics),
	}
	if nc.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(nc.ReconnectWait))
	}
	if nc.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(nc.DrainTimeout))
	}
	opts = append(opts, natsclient.WithHealthChangeCallback(func(healthy bool) {
		if healthy {
			a.logger.Info("NATS connection restored", "url", nc.URL)
			return
		}
		a.logger.Warn("NATS connection lost", "url", nc.URL)
	}))
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}

	client, err := natsclient.NewClient(nc.URL, opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	a.logger.Info("Connecting to NATS", "url", nc.URL)
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	a.nats = client
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *app) setupStore(ctx context.Context, client *engineclient.Client) error {
	switch a.cfg.Store.Backend {
	case config.StoreNATS:
		store, err := flowstore.NewKVStore(ctx, a.nats,
			flowstore.WithBucket(a.cfg.Store.NATS.Bucket),
			flowstore.WithStoreLogger(a.logger))
		if err != nil {
			return fmt.Errorf("open NATS flow store: %w", err)
		}
		a.store = store
	case config.StoreSQLite:
		store, err := flowstore.OpenSQLite(ctx, a.cfg.Store.SQLitePath, flowstore.WithStoreLogger(a.logger))
		if err != nil {
			return fmt.Errorf("open SQLite flow store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	default:
		a.store = client
	}
	if size := a.cfg.Store.CacheSize; size > 0 {
		cached, err := flowstore.NewCachedStore(a.store, size,
			flowstore.WithStoreLogger(a.logger),
			flowstore.WithStoreMetrics(a.metrics))
		if err != nil {
			return fmt.Errorf("flow cache: %w", err)
		}
		a.store = cached
	}
	a.logger.Debug("Flow store ready", "backend", a.cfg.Store.Backend, "cache_size", a.cfg.Store.CacheSize)
	return nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

// newSession opens an editor session over the app's collaborators.
func (a *app) newSession() (*editor.Session, error) {
	return editor.New(editor.Deps{
		Catalogue:     a.catalogue,
		Store:         a.store,
		Engine:        a.executor,
		Logger:        a.logger,
		Metrics:       a.metrics,
		PollInterval:  a.cfg.Engine.PollInterval,
		MaxPollErrors: a.cfg.Engine.MaxPollErrors,
	})
}

// checker probes the catalogue source, the flow store and NATS. NATS is
// critical only when it backs the store.
func (a *app) checker() *health.Checker {
	c := health.NewChecker(appName, a.cfg.Engine.Timeout)
	if a.source != nil {
		c.Add("catalogue", func(ctx context.Context) error {
			_, err := a.source.List(ctx)
			return err
		}, true)
	}
	c.Add("store", func(ctx context.Context) error {
		_, err := a.store.List(ctx)
		return err
	}, true)
	if a.nats != nil {
		storeOnNATS := a.cfg.Store.Backend == config.StoreNATS
		c.Add("nats", func(ctx context.Context) error {
			if !a.nats.IsHealthy() {
				return fmt.Errorf("connection %s", a.nats.Status())
			}
			if storeOnNATS {
				_, err := a.nats.GetKeyValueBucket(ctx, a.cfg.Store.NATS.Bucket)
				return err
			}
			return nil
		}, storeOnNATS)
	}
	return c
}

// newHub creates the run status hub when the gateway is enabled.
func (a *app) newHub() (*statusws.Hub, error) {
	if !a.cfg.Gateway.Enabled {
		return nil, nil
	}
	opts := []statusws.Option{
		statusws.WithLogger(a.logger),
		statusws.WithMetrics(a.metrics),
		statusws.WithPingInterval(a.cfg.Gateway.PingInterval),
	}
	if a.cfg.Gateway.PublishNATS && a.nats != nil {
		opts = append(opts, statusws.WithPublisher(a.nats))
	}
	return statusws.New(opts...)
}

// serveWhile runs fn with the metrics endpoint and the status gateway up.
// Both servers are stopped once fn returns. A server that fails cancels
// the context passed to fn.
func (a *app) serveWhile(ctx context.Context, hub *statusws.Hub, shutdownTimeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	var serverTLS *tls.Config
	if hub != nil {
		var err error
		if serverTLS, err = tlsutil.LoadServerTLSConfig(a.cfg.Gateway.TLS); err != nil {
			return fmt.Errorf("gateway TLS: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var stops []func(context.Context) error

	if a.cfg.Metrics.Enabled {
		srv := metric.NewServer(a.cfg.Metrics.Port, a.cfg.Metrics.Path, a.metrics)
		stops = append(stops, srv.Stop)
		g.Go(srv.Start)
		a.logger.Info("Metrics endpoint listening", "address", srv.Address())
	}

	if hub != nil {
		srv := &http.Server{
			Addr:              a.cfg.Gateway.Addr,
			Handler:           gateway.NewMux(a.cfg.Gateway.Path, hub, a.checker()),
			TLSConfig:         serverTLS,
			ReadHeaderTimeout: 5 * time.Second,
		}
		stops = append(stops, func(ctx context.Context) error {
			hub.Close()
			return srv.Shutdown(ctx)
		})
		g.Go(func() error {
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status gateway: %w", err)
			}
			return nil
		})
		a.logger.Info("Status gateway listening", "addr", a.cfg.Gateway.Addr,
			"path", a.cfg.Gateway.Path+"/run", "tls", serverTLS != nil)
	}

	g.Go(func() error {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			for _, stop := range stops {
				if err := stop(stopCtx); err != nil {
					a.logger.Warn("Server shutdown failed", "error", err)
				}
			}
		}()
		return fn(gctx)
	})
	return g.Wait()
}
