package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/healthmon/internal/observability/metrics"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         3,
		Timeout:             50 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
}

func openBreaker(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for range failures {
		_ = cb.Call(t.Context(), func(_ context.Context) error { return assert.AnError })
	}
	require.Equal(t, StateOpen, cb.State(), "circuit should be open")
}

func TestCircuitBreaker_ClosedState(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(testBreakerConfig(), nil, "webhook")
	assert.Equal(t, StateClosed, cb.State())

	for i := range 5 {
		err := cb.Call(t.Context(), func(_ context.Context) error { return nil })
		require.NoError(t, err, "call %d should succeed", i)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestCircuitBreaker_TransitionToOpen(t *testing.T) {
	t.Parallel()

	config := testBreakerConfig()
	cb := NewCircuitBreaker(config, nil, "webhook")
	testErr := errors.New("smtp refused")

	for i := range config.MaxFailures - 1 {
		err := cb.Call(t.Context(), func(_ context.Context) error { return testErr })
		require.ErrorIs(t, err, testErr, "call %d", i)
		assert.Equal(t, StateClosed, cb.State())
	}

	err := cb.Call(t.Context(), func(_ context.Context) error { return testErr })
	require.ErrorIs(t, err, testErr)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err = cb.Call(t.Context(), func(_ context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called, "channel must not be called while open")
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		config := testBreakerConfig()
		cb := NewCircuitBreaker(config, nil, "webhook")
		openBreaker(t, cb, config.MaxFailures)

		time.Sleep(config.Timeout + 10*time.Millisecond)

		called := false
		err := cb.Call(t.Context(), func(_ context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, 0, cb.Failures())
	})
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		config := testBreakerConfig()
		cb := NewCircuitBreaker(config, nil, "webhook")
		openBreaker(t, cb, config.MaxFailures)

		time.Sleep(config.Timeout + 10*time.Millisecond)

		testErr := errors.New("still down")
		err := cb.Call(t.Context(), func(_ context.Context) error { return testErr })
		require.ErrorIs(t, err, testErr)
		assert.Equal(t, StateOpen, cb.State())
	})
}

func TestCircuitBreaker_HalfOpenMaxRequests(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		config := CircuitBreakerConfig{MaxFailures: 2, Timeout: 50 * time.Millisecond, HalfOpenMaxRequests: 2}
		cb := NewCircuitBreaker(config, nil, "webhook")
		openBreaker(t, cb, config.MaxFailures)

		time.Sleep(config.Timeout + 10*time.Millisecond)

		testErr := errors.New("probe failed")
		blocker := make(chan struct{})
		errChan := make(chan error, config.HalfOpenMaxRequests+1)
		var wg sync.WaitGroup
		for range config.HalfOpenMaxRequests + 1 {
			wg.Go(func() {
				errChan <- cb.Call(t.Context(), func(_ context.Context) error {
					<-blocker
					return testErr
				})
			})
		}
		synctest.Wait()
		close(blocker)
		wg.Wait()
		close(errChan)

		rejected, probed := 0, 0
		for err := range errChan {
			switch {
			case errors.Is(err, testErr):
				probed++
			case errors.Is(err, ErrTooManyRequests):
				rejected++
			}
		}
		assert.Equal(t, 1, rejected)
		assert.Equal(t, config.HalfOpenMaxRequests, probed)
	})
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(testBreakerConfig(), nil, "email")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	for range 5 {
		err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
		require.ErrorIs(t, err, context.Canceled)
	}
	err := cb.Call(t.Context(), func(_ context.Context) error { return ErrNothingToSend })
	require.ErrorIs(t, err, ErrNothingToSend)

	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	config := testBreakerConfig()
	cb := NewCircuitBreaker(config, nil, "webhook")
	openBreaker(t, cb, config.MaxFailures)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
	require.NoError(t, cb.Call(t.Context(), func(_ context.Context) error { return nil }))
}

func TestCircuitBreaker_ExportsState(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewNotificationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	config := testBreakerConfig()
	cb := NewCircuitBreaker(config, m, "webhook")
	assert.InDelta(t, float64(metrics.CircuitClosed), testutil.ToFloat64(m.ChannelCircuitState.WithLabelValues("webhook")), 0)

	openBreaker(t, cb, config.MaxFailures)
	assert.InDelta(t, float64(metrics.CircuitOpen), testutil.ToFloat64(m.ChannelCircuitState.WithLabelValues("webhook")), 0)
}

func TestCircuitBreakerConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  CircuitBreakerConfig
		wantErr bool
	}{
		{"defaults", DefaultCircuitBreakerConfig(), false},
		{"zero failures", CircuitBreakerConfig{MaxFailures: 0, Timeout: time.Second, HalfOpenMaxRequests: 1}, true},
		{"zero timeout", CircuitBreakerConfig{MaxFailures: 1, HalfOpenMaxRequests: 1}, true},
		{"zero half-open", CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
