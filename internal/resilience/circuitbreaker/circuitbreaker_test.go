package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Name:             "test-circuit",
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func TestNew(t *testing.T) {
	cb := New(testConfig())

	require.NotNil(t, cb)
	assert.Equal(t, "test-circuit", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := New(testConfig())

	result, err := cb.Execute(func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	testErr := errors.New("upstream down")
	err = cb.Run(func() error { return testErr })
	assert.Same(t, testErr, err)
	assert.False(t, IsRejection(err))
	assert.Equal(t, uint32(2), cb.Counts().Requests)
}

func TestCircuitBreaker_TripsOpenAndRecovers(t *testing.T) {
	// Arrange
	var (
		mu          sync.Mutex
		transitions []gobreaker.State
	)
	cfg := testConfig()
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	}
	cb := New(cfg)
	testErr := errors.New("upstream down")

	// Act: five failures reach MinRequests at a 100% failure ratio
	for i := 0; i < 5; i++ {
		_ = cb.Run(func() error { return testErr })
	}

	// Assert
	require.True(t, cb.IsOpen())
	err := cb.Run(func() error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsRejection(err))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

	require.NoError(t, cb.Run(func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen, gobreaker.StateHalfOpen, gobreaker.StateClosed}, transitions)
}

func TestCircuitBreaker_MinRequests(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 4; i++ {
		_ = cb.Run(func() error { return errors.New("fail") })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State(), "must not trip below MinRequests")
}

func TestPresets(t *testing.T) {
	chat := ChatConfig("openai")
	assert.Equal(t, "chat-openai", chat.Name)
	assert.Equal(t, 0.6, chat.FailureThreshold)

	rec := RecognitionConfig()
	assert.Equal(t, "recognition", rec.Name)
	assert.Equal(t, uint32(4), rec.MinRequests)
}

func TestCircuitBreaker_ConsecutiveFailures(t *testing.T) {
	cfg := NotifierConfig("slack")
	cb := New(cfg)

	for i := 0; i < 4; i++ {
		_ = cb.Run(func() error { return errors.New("fail") })
	}
	require.NoError(t, cb.Run(func() error { return nil }))
	for i := 0; i < 4; i++ {
		_ = cb.Run(func() error { return errors.New("fail") })
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State(), "a success resets the streak")

	_ = cb.Run(func() error { return errors.New("fail") })
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, "notify-slack", cb.Name())
}
