package notification

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

const (
	defaultMaxConcurrent = 4
	defaultSendTimeout   = 30 * time.Second
)

// ErrDispatcherClosed is returned by Close when called twice
var ErrDispatcherClosed = errors.NewStd("notification: dispatcher closed")

// route is one channel plus its protection
type route struct {
	channel Channel
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// Dispatcher fans alerts out to every enabled channel
type Dispatcher struct {
	routes      []route
	metrics     *metrics.NotificationMetrics
	sem         *semaphore.Weighted
	sendTimeout time.Duration
	log         logger.Logger

	breakerCfg *CircuitBreakerConfig
	limitCfg   *RateLimitConfig
	maxAsync   int64

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	active  atomic.Int64
	queued  atomic.Int64
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithMaxConcurrent limits in-flight asynchronous dispatches. Alerts beyond
// the limit wait for a free slot.
func WithMaxConcurrent(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAsync = int64(n)
		}
	}
}

// WithDispatcherMetrics records deliveries, drops and queue depth
func WithDispatcherMetrics(m *metrics.NotificationMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithCircuitBreaker wraps every channel in its own breaker
func WithCircuitBreaker(cfg CircuitBreakerConfig) DispatcherOption {
	return func(d *Dispatcher) { d.breakerCfg = &cfg }
}

// WithRateLimit gives every channel its own token bucket
func WithRateLimit(cfg RateLimitConfig) DispatcherOption {
	return func(d *Dispatcher) { d.limitCfg = &cfg }
}

// WithSendTimeout bounds a single channel send
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher over channels. Disabled channels are
// kept out of the fan-out entirely.
func NewDispatcher(channels []Channel, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sendTimeout: defaultSendTimeout,
		maxAsync:    defaultMaxConcurrent,
		log:         GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = semaphore.NewWeighted(d.maxAsync)
	d.baseCtx, d.cancel = context.WithCancel(context.Background())

	for _, ch := range channels {
		if ch == nil || !ch.IsEnabled() {
			continue
		}
		r := route{channel: ch}
		if d.breakerCfg != nil {
			r.breaker = NewCircuitBreaker(*d.breakerCfg, d.metrics, ch.GetName())
		}
		if d.limitCfg != nil {
			r.limiter = newChannelLimiter(*d.limitCfg)
		}
		d.routes = append(d.routes, r)
	}
	return d
}

// Channels returns the names of the channels alerts are sent to
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		names = append(names, r.channel.GetName())
	}
	return names
}

// Dispatch delivers alert to every channel concurrently and waits for all
// of them. A failing channel only affects its own result.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *alerting.Alert) DispatchReport {
	report := DispatchReport{AlertID: alert.ID, Results: make([]ChannelResult, len(d.routes))}

	d.log.Info("dispatching alert",
		logger.String("alert_id", alert.ID),
		logger.String("alert_type", string(alert.Type)),
		logger.String("severity", string(alert.Severity)),
		logger.Int("channels", len(d.routes)))
	if d.metrics != nil {
		d.metrics.IncrementDispatchTotal()
	}

	var wg sync.WaitGroup
	for i := range d.routes {
		wg.Go(func() {
			report.Results[i] = d.deliver(ctx, &d.routes[i], alert)
		})
	}
	wg.Wait()

	for _, res := range report.Results {
		if res.Status == StatusFailed {
			d.log.Warn("alert delivery failed",
				logger.String("alert_id", alert.ID),
				logger.String("channel", res.Channel),
				logger.String("error", res.Error))
		}
	}
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, r *route, alert *alerting.Alert) (res ChannelResult) {
	name := r.channel.GetName()
	res = ChannelResult{Channel: name, Kind: r.channel.Kind()}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusFailed
			res.err = errors.Newf("channel %s panicked: %v", name, p).
				Component("notification").
				Category(errors.CategoryNotification).
				Context("channel", name).
				Context("stack", string(debug.Stack())).
				Build()
			res.Error = res.err.Error()
		}
		res.Duration = time.Since(start)
		if d.metrics != nil {
			d.metrics.RecordDelivery(name, string(res.Status), res.Duration)
		}
	}()

	if r.limiter != nil && !r.limiter.Allow() {
		if d.metrics != nil {
			d.metrics.RecordRateLimited(name)
		}
		res.Status = StatusRateLimited
		return res
	}

	send := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
		return r.channel.Send(ctx, alert)
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Call(ctx, send)
	} else {
		err = send(ctx)
	}

	switch {
	case err == nil:
		res.Status = StatusDelivered
	case errors.Is(err, ErrNothingToSend):
		res.Status = StatusSkipped
	case errors.Is(err, ErrCircuitBreakerOpen):
		res.Status = StatusCircuitOpen
		res.err = err
		res.Error = err.Error()
	default:
		res.Status = StatusFailed
		res.err = err
		res.Error = sanitizeError(err).Error()
	}
	return res
}

// DispatchAsync delivers a copy of alert in the background. At most
// maxAsync dispatches run at once; the rest wait for a slot. An alert is
// only dropped when the dispatcher is closed, or when Close gives up before
// the alert got a slot.
func (d *Dispatcher) DispatchAsync(alert *alerting.Alert) {
	if alert == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.drop(alert, "dispatcher closed")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	snapshot := alert.Clone()
	d.setQueued(d.queued.Add(1))
	go func() {
		defer d.wg.Done()

		err := d.sem.Acquire(d.baseCtx, 1)
		d.setQueued(d.queued.Add(-1))
		if err != nil {
			d.drop(snapshot, "dispatcher shut down before a slot was free")
			return
		}
		d.setActive(d.active.Add(1))
		defer func() {
			d.setActive(d.active.Add(-1))
			d.sem.Release(1)
		}()
		d.Dispatch(d.baseCtx, snapshot)
	}()
}

func (d *Dispatcher) drop(alert *alerting.Alert, reason string) {
	if d.metrics != nil {
		d.metrics.RecordDispatchDropped()
	}
	d.log.Warn("alert dispatch dropped",
		logger.String("alert_id", alert.ID),
		logger.String("reason", reason))
}

func (d *Dispatcher) setQueued(n int64) {
	if d.metrics != nil {
		d.metrics.SetDispatchQueued(int(n))
	}
}

func (d *Dispatcher) setActive(n int64) {
	if d.metrics != nil {
		d.metrics.SetDispatchActive(int(n))
	}
}

// Close stops accepting new alerts and waits for in-flight dispatches. If ctx
// expires first the remaining sends are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("notification dispatcher close: %w", ctx.Err())
	}
}

var _ alerting.Notifier = (*Dispatcher)(nil)
