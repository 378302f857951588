package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestClient runs a NATS server in a container for integration tests.
type TestClient struct {
	container testcontainers.Container
	Client    *Client
	URL       string
	cleanup   func()
}

type testConfig struct {
	jetstream    bool
	kvBuckets    []string
	natsVersion  string
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption configures NewTestClient.
type TestOption func(*testConfig)

// WithJetStream enables JetStream on the server.
func WithJetStream() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
	}
}

// WithKVBuckets pre-creates buckets. It implies JetStream.
func WithKVBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
		cfg.kvBuckets = append(cfg.kvBuckets, buckets...)
	}
}

// WithNATSVersion selects the server image tag.
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout bounds container startup.
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// NewTestClient starts a container and returns a connected client. The
// container is terminated by t.Cleanup.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tc, err := startTestClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NATS test container: %v", err)
	}
	t.Cleanup(tc.cleanup)
	return tc
}

func startTestClient(ctx context.Context, cfg *testConfig) (*TestClient, error) {
	args := []string{"--port", "4222", "--http_port", "8222"}
	if cfg.jetstream {
		args = append(args, "--js")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:" + cfg.natsVersion,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          args,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		terminate()
		return nil, fmt.Errorf("mapped port: %w", err)
	}
	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	client, err := NewClient(url, WithTimeout(cfg.timeout), WithMaxReconnects(0))
	if err != nil {
		terminate()
		return nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		terminate()
		return nil, fmt.Errorf("connect: %w", err)
	}

	tc := &TestClient{
		container: container,
		Client:    client,
		URL:       url,
		cleanup: func() {
			_ = client.Close(context.Background())
			terminate()
		},
	}
	for _, name := range cfg.kvBuckets {
		if _, err := tc.CreateKVBucket(ctx, name); err != nil {
			tc.cleanup()
			return nil, fmt.Errorf("create KV bucket %s: %w", name, err)
		}
	}
	return tc, nil
}

// Terminate stops the client and container early.
func (tc *TestClient) Terminate() {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = func() {}
	}
}

// CreateKVBucket creates a bucket with default settings.
func (tc *TestClient) CreateKVBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	return tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: name})
}
