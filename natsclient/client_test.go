package natsclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fcerrors "github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/metric"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusClosed, "closed"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClient_Options(t *testing.T) {
	_, err := NewClient("")
	assert.True(t, fcerrors.IsInvalid(err))

	_, err = NewClient("nats://localhost:4222", WithTimeout(0))
	assert.Error(t, err)
	_, err = NewClient("nats://localhost:4222", WithDrainTimeout(0))
	assert.Error(t, err)

	c, err := NewClient("nats://localhost:4222",
		WithName("test"),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithCredentials("user", "pass"),
		WithDrainTimeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "test", c.clientName)
	assert.Equal(t, 2*time.Second, c.drainTimeout)
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, c.Publish(ctx, "x", nil), ErrNotConnected)
	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.GetKeyValueBucket(ctx, "b")
	assert.Error(t, err)
}

func TestClient_ConnectFailure(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1", WithTimeout(200*time.Millisecond), WithMaxReconnects(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, fcerrors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClient_StatusMetricsAndCallback(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var changes []bool
	c, err := NewClient("nats://localhost:4222",
		WithMetrics(registry),
		WithHealthChangeCallback(func(h bool) { changes = append(changes, h) }))
	require.NoError(t, err)

	c.setStatus(StatusConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().NATSConnected))
	c.setStatus(StatusReconnecting)
	assert.Equal(t, 0.0, testutil.ToFloat64(registry.CoreMetrics().NATSConnected))
	c.setStatus(StatusReconnecting)

	assert.Equal(t, []bool{true, false}, changes)
}

func TestClient_CloseIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusClosed, c.Status())
	assert.Error(t, c.Connect(context.Background()))
}

func TestKVErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
		conflict bool
	}{
		{"nil", nil, false, false},
		{"sentinel not found", ErrKVKeyNotFound, true, false},
		{"wrapped not found", fmt.Errorf("get: %w", ErrKVKeyNotFound), true, false},
		{"jetstream not found", fmt.Errorf("get: %w", jetstream.ErrKeyNotFound), true, false},
		{"deleted", jetstream.ErrKeyDeleted, true, false},
		{"revision", ErrKVRevisionMismatch, false, true},
		{"exists", ErrKVKeyExists, false, true},
		{"wrong last sequence", &jetstream.APIError{Code: 400, ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence}, false, true},
		{"other api error", &jetstream.APIError{Code: 503, ErrorCode: 10059}, false, false},
		{"other", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsKVNotFoundError(tt.err))
			assert.Equal(t, tt.conflict, IsKVConflictError(tt.err))
		})
	}
}
