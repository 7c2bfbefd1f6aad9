package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Circuit breaker states as exported gauge values
const (
	CircuitClosed   = 0
	CircuitHalfOpen = 1
	CircuitOpen     = 2
)

// NotificationMetrics contains Prometheus metrics for alert delivery
type NotificationMetrics struct {
	ChannelDeliveriesTotal  *prometheus.CounterVec   // Deliveries by channel and status
	ChannelDeliveryDuration *prometheus.HistogramVec // Latency by channel
	ChannelCircuitState     *prometheus.GaugeVec     // Circuit breaker state by channel
	DispatchTotal           prometheus.Counter       // Alerts handed to the dispatcher
	DispatchActive          prometheus.Gauge         // In-flight async dispatches
	DispatchQueued          prometheus.Gauge         // Async dispatches waiting for a slot
	DispatchDroppedTotal    prometheus.Counter       // Async dispatches dropped at shutdown
	ChannelRateLimitedTotal *prometheus.CounterVec   // Deliveries skipped by the rate limiter
}

// NewNotificationMetrics creates and registers notification metrics
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.ChannelDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_notification_deliveries_total",
			Help: "Total alert delivery attempts by channel and status",
		},
		[]string{"channel", "status"}, // status: delivered, failed, skipped, circuit_open, rate_limited
	)

	m.ChannelDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthmon_notification_delivery_duration_seconds",
			Help:    "Time taken to deliver an alert by channel",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"channel"},
	)

	m.ChannelCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthmon_notification_circuit_state",
			Help: "Circuit breaker state by channel (0=closed, 1=half-open, 2=open)",
		},
		[]string{"channel"},
	)

	m.DispatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmon_notification_dispatch_total",
			Help: "Total alerts handed to the dispatcher",
		},
	)

	m.DispatchActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmon_notification_dispatch_active",
			Help: "Number of in-flight asynchronous dispatches",
		},
	)

	m.DispatchQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmon_notification_dispatch_queued",
			Help: "Number of asynchronous dispatches waiting for a free slot",
		},
	)

	m.DispatchDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmon_notification_dispatch_dropped_total",
			Help: "Total asynchronous dispatches dropped because the dispatcher was shutting down",
		},
	)

	m.ChannelRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_notification_rate_limited_total",
			Help: "Total deliveries skipped by the per-channel rate limiter",
		},
		[]string{"channel"},
	)
}

// RecordDelivery records a delivery attempt and its latency
func (m *NotificationMetrics) RecordDelivery(channel, status string, duration time.Duration) {
	m.ChannelDeliveriesTotal.WithLabelValues(channel, status).Inc()
	if status != "skipped" {
		m.ChannelDeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

func (m *NotificationMetrics) UpdateCircuitState(channel string, state int) {
	m.ChannelCircuitState.WithLabelValues(channel).Set(float64(state))
}

func (m *NotificationMetrics) IncrementDispatchTotal() {
	m.DispatchTotal.Inc()
}

func (m *NotificationMetrics) SetDispatchActive(count int) {
	m.DispatchActive.Set(float64(count))
}

func (m *NotificationMetrics) SetDispatchQueued(count int) {
	m.DispatchQueued.Set(float64(count))
}

func (m *NotificationMetrics) RecordDispatchDropped() {
	m.DispatchDroppedTotal.Inc()
}

func (m *NotificationMetrics) RecordRateLimited(channel string) {
	m.ChannelRateLimitedTotal.WithLabelValues(channel).Inc()
}

// Describe implements the prometheus.Collector interface
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ChannelDeliveriesTotal.Describe(ch)
	m.ChannelDeliveryDuration.Describe(ch)
	m.ChannelCircuitState.Describe(ch)
	m.DispatchTotal.Describe(ch)
	m.DispatchActive.Describe(ch)
	m.DispatchQueued.Describe(ch)
	m.DispatchDroppedTotal.Describe(ch)
	m.ChannelRateLimitedTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ChannelDeliveriesTotal.Collect(ch)
	m.ChannelDeliveryDuration.Collect(ch)
	m.ChannelCircuitState.Collect(ch)
	m.DispatchTotal.Collect(ch)
	m.DispatchActive.Collect(ch)
	m.DispatchQueued.Collect(ch)
	m.DispatchDroppedTotal.Collect(ch)
	m.ChannelRateLimitedTotal.Collect(ch)
}
