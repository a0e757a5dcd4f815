package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: reset})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 3, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(2, 30*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()

	clock.Advance(10 * time.Second)
	allowed, _ := cb.Allow()
	assert.False(t, allowed, "still within reset period")

	clock.Advance(21 * time.Second)
	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	allowed, err = cb.Allow()
	assert.False(t, allowed, "only one probe at a time")
	assert.Contains(t, err.Error(), "half-open")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	clock.Advance(2 * time.Second)
	allowed, _ := cb.Allow()
	require.True(t, allowed)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_ZeroThresholdUsesDefault(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 100, ResetAfter: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = cb.Allow()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()
}

func TestBreakerClient_FailsFastWhenOpen(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeEndpoint, "server error", true, nil)
	}
	cb, _ := newTestBreaker(2, time.Minute)
	client := NewBreakerClient(mock, cb, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.GenerateResponse(context.Background(), "q", "s", 0)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := client.GenerateResponse(context.Background(), "q", "s", 0)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 2, mock.Calls(), "open circuit must not reach the provider")
}

func TestBreakerClient_CanceledDoesNotCount(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*GenerateResponseResult, error) {
		return nil, context.Canceled
	}
	cb, _ := newTestBreaker(1, time.Minute)
	client := NewBreakerClient(mock, cb, zap.NewNop())

	_, err := client.GenerateResponse(context.Background(), "q", "s", 0)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerClient_SuccessPassesThrough(t *testing.T) {
	mock := NewMockLLMClient()
	mock.Model = "gpt-4o-mini"
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "SELECT 1"}, nil
	}
	cb, _ := newTestBreaker(3, time.Minute)
	cb.RecordFailure()
	client := NewBreakerClient(mock, cb, zap.NewNop())

	result, err := client.GenerateResponse(context.Background(), "q", "s", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", result.Content)
	assert.Zero(t, cb.ConsecutiveFailures())
	assert.Equal(t, "gpt-4o-mini", client.GetModel())
	assert.Same(t, cb, client.Breaker())
}
