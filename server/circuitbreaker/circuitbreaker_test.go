package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCircuitBreaker(t *testing.T) {
	logger := zap.NewNop()

	newCB := func(t *testing.T) *CircuitBreaker {
		cb, err := NewCircuitBreaker(Config{
			Name:             "test",
			MaxRequests:      1,
			Interval:         time.Second,
			Timeout:          100 * time.Millisecond,
			FailureThreshold: 2,
			TestMode:         true,
		}, logger, nil)
		require.NoError(t, err)
		return cb
	}

	t.Run("Initially Closed", func(t *testing.T) {
		cb := newCB(t)
		assert.Equal(t, gobreaker.StateClosed, cb.State())
		assert.Equal(t, "test", cb.Name())
	})

	t.Run("Opens After Failures", func(t *testing.T) {
		cb := newCB(t)

		err := cb.Execute(func() error { return errors.New("error 1") })
		assert.EqualError(t, err, "error 1")
		assert.Equal(t, gobreaker.StateClosed, cb.State())

		err = cb.Execute(func() error { return errors.New("error 2") })
		assert.Error(t, err)
		assert.Equal(t, gobreaker.StateOpen, cb.State())

		called := false
		err = cb.Execute(func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, called)
	})

	t.Run("Transitions to Half-Open and back to Open", func(t *testing.T) {
		cb := newCB(t)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("failure") })
		}
		require.Equal(t, gobreaker.StateOpen, cb.State())

		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

		err := cb.Execute(func() error { return errors.New("failure in half-open") })
		assert.Error(t, err)
		assert.Equal(t, gobreaker.StateOpen, cb.State())
	})

	t.Run("Closes After Success", func(t *testing.T) {
		cb := newCB(t)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("failure") })
		}
		time.Sleep(150 * time.Millisecond)
		require.Equal(t, gobreaker.StateHalfOpen, cb.State())

		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, gobreaker.StateClosed, cb.State())
	})

	t.Run("Success Resets Consecutive Failures", func(t *testing.T) {
		cb := newCB(t)
		for i := 0; i < 4; i++ {
			i := i
			_ = cb.Execute(func() error {
				if i%2 == 0 {
					return errors.New("failure")
				}
				return nil
			})
		}

		counts := cb.Counts()
		assert.Equal(t, gobreaker.StateClosed, cb.State())
		assert.Equal(t, uint32(2), counts.TotalFailures)
		assert.Equal(t, uint32(4), counts.Requests)
	})
}

func TestCircuitBreakerIsSuccessful(t *testing.T) {
	cb, err := NewCircuitBreaker(Config{
		Name:             "filtered",
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
		TestMode:         true,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}, zap.NewNop(), nil)
	require.NoError(t, err)

	err = cb.Execute(func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	_ = cb.Execute(func() error { return errors.New("boom") })
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestCircuitBreakerMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	cb, err := NewCircuitBreaker(Config{
		Name:             "groq",
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}, zap.NewNop(), registry)
	require.NoError(t, err)

	_ = cb.Execute(func() error { return errors.New("boom") })

	assert.Equal(t, float64(1), testutil.ToFloat64(cb.tripsTotal))
	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(cb.stateGauge))

	// A second breaker with the same name cannot share the registry.
	_, err = NewCircuitBreaker(Config{Name: "groq", FailureThreshold: 1}, zap.NewNop(), registry)
	assert.Error(t, err)
}

func TestNewCircuitBreakerValidation(t *testing.T) {
	_, err := NewCircuitBreaker(Config{FailureThreshold: 1, TestMode: true}, nil, nil)
	assert.Error(t, err)

	_, err = NewCircuitBreaker(Config{Name: "x", TestMode: true}, nil, nil)
	assert.Error(t, err)
}
