package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockNATSClient is an in-memory stand-in for natsclient.Client's
// Publish and Subscribe. It is safe for concurrent use.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]func(context.Context, []byte)
	closed        bool

	// PublishErr, when set, is returned by every Publish.
	PublishErr error
}

// NewMockNATSClient creates an empty client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
	}
}

// Publish records data on subject and runs matching handlers outside the lock.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return err
	}
	c.messages[subject] = append(c.messages[subject], append([]byte(nil), data...))
	handlers := append([]func(context.Context, []byte){}, c.subscriptions[subject]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, data)
	}
	return nil
}

// Subscribe registers handler for an exact subject.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// Messages returns a copy of everything published on subject.
func (c *MockNATSClient) Messages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.messages[subject]
	out := make([][]byte, len(msgs))
	copy(out, msgs)
	return out
}

// Subjects returns every subject that received at least one message.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.messages))
	for s := range c.messages {
		out = append(out, s)
	}
	return out
}

// Close marks the client closed; later calls fail.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// WaitForMessageCount blocks until subject has at least count messages or
// fails the test after timeout.
func WaitForMessageCount(t testing.TB, client *MockNATSClient, subject string, count int, timeout time.Duration) [][]byte {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		msgs := client.Messages(subject)
		if len(msgs) >= count {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, len(msgs))
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}
