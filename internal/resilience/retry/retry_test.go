package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   5 * time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func TestWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoff_SuccessAfterRetry(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return &HTTPError{StatusCode: 503, Message: "Service Unavailable"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoff_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	testErr := &HTTPError{StatusCode: 500, Message: "Server Error"}

	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return testErr
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, testErr)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
}

func TestWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	testErr := &HTTPError{StatusCode: 400, Message: "Bad Request"}

	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return testErr
	})

	assert.Same(t, testErr, err)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoff_CustomClassifier(t *testing.T) {
	transient := errors.New("bad connection")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return errors.Is(err, transient) }

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return transient
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "custom classifier must allow retries of a plain error")
}

func TestWithBackoff_ContextCanceled(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxDelay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := WithBackoff(ctx, cfg, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return &HTTPError{StatusCode: 500, Message: "Server Error"}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "context canceled", err: context.Canceled, retryable: false},
		{name: "context deadline exceeded", err: context.DeadlineExceeded, retryable: false},
		{name: "HTTP 500", err: &HTTPError{StatusCode: 500}, retryable: true},
		{name: "HTTP 502", err: &HTTPError{StatusCode: 502}, retryable: true},
		{name: "HTTP 429", err: &HTTPError{StatusCode: 429}, retryable: true},
		{name: "HTTP 408", err: &HTTPError{StatusCode: 408}, retryable: true},
		{name: "HTTP 400", err: &HTTPError{StatusCode: 400}, retryable: false},
		{name: "HTTP 404", err: &HTTPError{StatusCode: 404}, retryable: false},
		{name: "ECONNREFUSED", err: syscall.ECONNREFUSED, retryable: true},
		{name: "ECONNRESET", err: syscall.ECONNRESET, retryable: true},
		{name: "ETIMEDOUT", err: syscall.ETIMEDOUT, retryable: true},
		{name: "EPIPE", err: syscall.EPIPE, retryable: true},
		{name: "generic error", err: errors.New("some error"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestPresets(t *testing.T) {
	store := StoreConfig()
	assert.Equal(t, 3, store.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, store.InitialDelay)
	assert.Equal(t, time.Second, store.MaxDelay)

	chat := ChatConfig()
	assert.Equal(t, 3, chat.MaxAttempts)
	assert.Equal(t, 2*time.Second, chat.InitialDelay)

	synth := SynthesisConfig()
	assert.Equal(t, 2, synth.MaxAttempts)
	assert.Equal(t, time.Second, synth.MaxJitter)
}

func TestConfig_Delay(t *testing.T) {
	t.Run("exponential capped", func(t *testing.T) {
		cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

		assert.Equal(t, 100*time.Millisecond, cfg.Delay(1))
		assert.Equal(t, 200*time.Millisecond, cfg.Delay(2))
		assert.Equal(t, 300*time.Millisecond, cfg.Delay(3))
		assert.Equal(t, 300*time.Millisecond, cfg.Delay(10))
	})

	t.Run("synthesis pacing", func(t *testing.T) {
		cfg := SynthesisConfig()
		for i := 0; i < 20; i++ {
			d := cfg.Delay(1 + i%2)
			assert.GreaterOrEqual(t, d, 500*time.Millisecond)
			assert.Less(t, d, 1500*time.Millisecond)
		}
	})
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: 500, Message: "Internal Server Error"}
	assert.Equal(t, "HTTP 500: Internal Server Error", err.Error())
}

func TestAddJitter(t *testing.T) {
	duration := 100 * time.Millisecond

	results := make(map[time.Duration]bool)
	for i := 0; i < 10; i++ {
		result := addJitter(duration, 0.2)
		assert.GreaterOrEqual(t, result, duration)
		assert.LessOrEqual(t, result, time.Duration(float64(duration)*1.2))
		results[result] = true
	}
	assert.GreaterOrEqual(t, len(results), 2, "expected jitter to produce varied results")

	assert.Equal(t, duration, addJitter(duration, 0))
}
