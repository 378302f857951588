package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("engine unavailable")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return errors.New("persistent error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		return NonRetryable(sentinel)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RetryablePredicate(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts == 2 {
			return permanent
		}
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestRetry_MaxDelayCapsBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   10.0,
	}

	assert.Equal(t, 25*time.Millisecond, cfg.next(10*time.Millisecond))
	assert.Equal(t, 25*time.Millisecond, cfg.next(25*time.Millisecond))
}

func TestRetry_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative delay", Config{InitialDelay: -1}},
		{"negative multiplier", Config{Multiplier: -2}},
		{"max below initial", Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Do(context.Background(), tt.cfg, func() error {
				called = true
				return nil
			})
			assert.Error(t, err)
			assert.False(t, called)
		})
	}
}

func TestRetry_WithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("not ready")
		}
		return "flow-1", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "flow-1", result)
}

func TestRetry_ZeroAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_Presets(t *testing.T) {
	assert.Equal(t, 3, DefaultConfig().MaxAttempts)
	assert.Equal(t, 5, Quick().MaxAttempts)
	assert.True(t, Quick().AddJitter)
}
