package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

type fakeChannel struct {
	name     string
	disabled bool
	err      error
	panics   bool
	block    chan struct{}
	calls    atomic.Int32
	mu       sync.Mutex
	ids      []string
}

func (f *fakeChannel) GetName() string       { return f.name }
func (f *fakeChannel) Kind() ChannelKind     { return KindWebhook }
func (f *fakeChannel) IsEnabled() bool       { return !f.disabled }
func (f *fakeChannel) ValidateConfig() error { return nil }

func (f *fakeChannel) Send(ctx context.Context, a *alerting.Alert) error {
	f.calls.Add(1)
	if f.panics {
		panic("channel exploded")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.ids = append(f.ids, a.ID)
	f.mu.Unlock()
	return f.err
}

func newTestNotificationMetrics(t *testing.T) *metrics.NotificationMetrics {
	t.Helper()
	m, err := metrics.NewNotificationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatch_ChannelIsolation(t *testing.T) {
	t.Parallel()

	ok := &fakeChannel{name: "ok"}
	failing := &fakeChannel{name: "failing", err: errors.New("smtp 550 mailbox unavailable")}
	panicking := &fakeChannel{name: "panicking", panics: true}
	skipping := &fakeChannel{name: "skipping", err: ErrNothingToSend}
	disabled := &fakeChannel{name: "disabled", disabled: true}

	m := newTestNotificationMetrics(t)
	d := NewDispatcher([]Channel{ok, failing, panicking, skipping, disabled}, WithDispatcherMetrics(m))
	t.Cleanup(func() { closeDispatcher(t, d) })

	assert.Equal(t, []string{"ok", "failing", "panicking", "skipping"}, d.Channels())

	report := d.Dispatch(t.Context(), testAlert())
	require.Len(t, report.Results, 4)
	assert.Equal(t, "a1b2c3", report.AlertID)

	byName := map[string]ChannelResult{}
	for _, res := range report.Results {
		byName[res.Channel] = res
	}
	assert.Equal(t, StatusDelivered, byName["ok"].Status)
	assert.Equal(t, StatusFailed, byName["failing"].Status)
	assert.Contains(t, byName["failing"].Error, "mailbox unavailable")
	assert.Equal(t, StatusFailed, byName["panicking"].Status)
	assert.Contains(t, byName["panicking"].Error, "panicked")
	require.Error(t, byName["panicking"].Err())
	assert.Equal(t, StatusSkipped, byName["skipping"].Status)
	assert.Empty(t, byName["skipping"].Error)

	assert.Equal(t, 1, report.Count(StatusDelivered))
	assert.Equal(t, 2, report.Count(StatusFailed))
	assert.Equal(t, int32(0), disabled.calls.Load())

	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ChannelDeliveriesTotal.WithLabelValues("ok", "delivered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ChannelDeliveriesTotal.WithLabelValues("failing", "failed")), 0)
}

func TestDispatch_NoChannels(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	t.Cleanup(func() { closeDispatcher(t, d) })

	report := d.Dispatch(t.Context(), testAlert())
	assert.Empty(t, report.Results)
}

func TestDispatch_CircuitOpensAfterFailures(t *testing.T) {
	t.Parallel()

	failing := &fakeChannel{name: "webhook", err: errors.New("503")}
	d := NewDispatcher([]Channel{failing},
		WithCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxRequests: 1}))
	t.Cleanup(func() { closeDispatcher(t, d) })

	for range 2 {
		report := d.Dispatch(t.Context(), testAlert())
		assert.Equal(t, StatusFailed, report.Results[0].Status)
	}
	report := d.Dispatch(t.Context(), testAlert())
	assert.Equal(t, StatusCircuitOpen, report.Results[0].Status)
	assert.Equal(t, int32(2), failing.calls.Load(), "open circuit must not call the channel")
}

func TestDispatch_RateLimited(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{name: "chat"}
	m := newTestNotificationMetrics(t)
	d := NewDispatcher([]Channel{ch},
		WithDispatcherMetrics(m),
		WithRateLimit(RateLimitConfig{RequestsPerMinute: 1, Burst: 2}))
	t.Cleanup(func() { closeDispatcher(t, d) })

	var statuses []DeliveryStatus
	for range 3 {
		statuses = append(statuses, d.Dispatch(t.Context(), testAlert()).Results[0].Status)
	}
	assert.Equal(t, []DeliveryStatus{StatusDelivered, StatusDelivered, StatusRateLimited}, statuses)
	assert.Equal(t, int32(2), ch.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.ChannelRateLimitedTotal.WithLabelValues("chat")), 0)
}

func TestDispatch_SendTimeout(t *testing.T) {
	t.Parallel()

	slow := &fakeChannel{name: "slow", block: make(chan struct{})}
	d := NewDispatcher([]Channel{slow}, WithSendTimeout(20*time.Millisecond))
	t.Cleanup(func() { closeDispatcher(t, d) })

	report := d.Dispatch(t.Context(), testAlert())
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	require.ErrorIs(t, report.Results[0].Err(), context.DeadlineExceeded)
}

func TestDispatchAsync_DeliversCopy(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{name: "ok"}
	d := NewDispatcher([]Channel{ch})

	a := testAlert()
	d.DispatchAsync(a)
	a.ID = "mutated after dispatch"
	d.DispatchAsync(nil)

	closeDispatcher(t, d)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, []string{"a1b2c3"}, ch.ids)
}

func TestDispatchAsync_QueuesBeyondLimit(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	ch := &fakeChannel{name: "slow", block: block}
	m := newTestNotificationMetrics(t)
	d := NewDispatcher([]Channel{ch}, WithMaxConcurrent(2), WithDispatcherMetrics(m))

	// one bad cycle: cpu, memory, disk, database and degraded at once
	const burst = 5
	for i := range burst {
		a := testAlert()
		a.ID = fmt.Sprintf("alert-%d", i)
		d.DispatchAsync(a)
	}

	require.Eventually(t, func() bool { return ch.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.DispatchQueued) == burst-2 },
		time.Second, 5*time.Millisecond)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DispatchActive), 0)
	assert.Equal(t, int32(2), ch.calls.Load(), "concurrency bound held")

	close(block)
	closeDispatcher(t, d)

	ch.mu.Lock()
	assert.Len(t, ch.ids, burst, "every alert delivered")
	ch.mu.Unlock()
	assert.InDelta(t, 0, testutil.ToFloat64(m.DispatchDroppedTotal), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.DispatchActive), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.DispatchQueued), 0)

	d.DispatchAsync(testAlert())
	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchDroppedTotal), 0, "closed dispatcher drops")
}

func TestDispatchAsync_CloseDeadlineDropsQueued(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{name: "stuck", block: make(chan struct{})}
	m := newTestNotificationMetrics(t)
	d := NewDispatcher([]Channel{ch}, WithMaxConcurrent(1), WithDispatcherMetrics(m))

	d.DispatchAsync(testAlert())
	d.DispatchAsync(testAlert())
	require.Eventually(t, func() bool { return ch.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchDroppedTotal), 0, "waiting alert dropped at shutdown")
}

func TestDispatcherClose(t *testing.T) {
	t.Parallel()

	t.Run("deadline cancels in-flight sends", func(t *testing.T) {
		t.Parallel()
		ch := &fakeChannel{name: "stuck", block: make(chan struct{})}
		d := NewDispatcher([]Channel{ch})
		d.DispatchAsync(testAlert())
		require.Eventually(t, func() bool { return ch.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	})

	t.Run("second close", func(t *testing.T) {
		t.Parallel()
		d := NewDispatcher(nil)
		require.NoError(t, d.Close(t.Context()))
		require.ErrorIs(t, d.Close(t.Context()), ErrDispatcherClosed)
	})
}

func TestBuildChannels(t *testing.T) {
	t.Parallel()

	settings := &conf.NotificationSettings{
		Webhook: conf.WebhookSettings{Enabled: true, URL: "https://hooks.example.com/a", Timeout: 5},
		InApp:   conf.InAppSettings{Enabled: true},
		Email:   conf.EmailSettings{Enabled: true, Host: "", Port: 25},
		Shoutrrr: conf.ShoutrrrSettings{
			Enabled: false,
			URLs:    []string{"telegram://token@telegram?chats=1"},
		},
	}

	channels := BuildChannels(settings, &recordingSink{})
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.GetName())
	}
	assert.Equal(t, []string{"webhook", "in_app"}, names, "invalid email and disabled shoutrrr are left out")
	assert.Nil(t, BuildChannels(nil, nil))
}

func TestNewDispatcherFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.NotificationSettings{
		MaxConcurrent:  2,
		InApp:          conf.InAppSettings{Enabled: true},
		CircuitBreaker: conf.CircuitBreakerSettings{Enabled: true, MaxFailures: 3, Timeout: 60},
		RateLimit:      conf.RateLimitSettings{Enabled: true, RequestsPerMinute: 30, Burst: 5},
	}
	sink := &recordingSink{}
	d := NewDispatcherFromSettings(settings, sink, newTestNotificationMetrics(t))
	t.Cleanup(func() { closeDispatcher(t, d) })

	require.Len(t, d.routes, 1)
	assert.NotNil(t, d.routes[0].breaker)
	assert.NotNil(t, d.routes[0].limiter)
	assert.Equal(t, int64(2), d.maxAsync)
	assert.Equal(t, 3, d.routes[0].breaker.config.MaxFailures)
	assert.Equal(t, time.Minute, d.routes[0].breaker.config.Timeout)

	report := d.Dispatch(t.Context(), testAlert())
	assert.Equal(t, StatusDelivered, report.Results[0].Status)
	assert.Len(t, sink.alerts, 1)
}

func TestEngineBurstDeliversEveryNewAlert(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{name: "slow", block: make(chan struct{})}
	d := NewDispatcher([]Channel{ch}, WithMaxConcurrent(4))
	engine, err := alerting.NewEngine(alerting.DefaultEngineConfig(), d)
	require.NoError(t, err)

	messages := []string{"cpu at 97%", "memory at 95%", "disk at 99%", "database unreachable", "system degraded"}
	for _, msg := range messages {
		require.NotEmpty(t, engine.SendAlert(t.Context(), alerting.TypeSystemError, msg, alerting.SeverityCritical, nil))
	}

	require.Eventually(t, func() bool { return ch.calls.Load() == 4 }, time.Second, 5*time.Millisecond)
	close(ch.block)
	closeDispatcher(t, d)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Len(t, ch.ids, len(messages))
}
