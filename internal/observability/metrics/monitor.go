package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics contains Prometheus metrics for the health monitoring loop
type MonitorMetrics struct {
	ResourceUsage      *prometheus.GaugeVec   // Last observed usage percent by resource
	HealthStatus       prometheus.Gauge       // Overall status (0=healthy, 1=warning, 2=critical)
	ComponentStatus    *prometheus.GaugeVec   // Dependency status (1=healthy, 0=error, -1=unavailable)
	TaskCounts         *prometheus.GaugeVec   // Task counts by state
	QueueWaitSeconds   prometheus.Gauge       // Predicted queue wait
	CyclesTotal        *prometheus.CounterVec // Monitoring cycles by trigger and result
	CycleDuration      prometheus.Histogram   // Cycle latency
	ProbeFailuresTotal *prometheus.CounterVec // Failed probes by probe name
	AlertsEmittedTotal *prometheus.CounterVec // Threshold alerts emitted by kind
	AlertsSuppressed   *prometheus.CounterVec // Threshold alerts suppressed by cooldown
}

// NewMonitorMetrics creates and registers monitoring metrics
func NewMonitorMetrics(registry *prometheus.Registry) (*MonitorMetrics, error) {
	m := &MonitorMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register monitor metrics: %w", err)
	}
	return m, nil
}

func (m *MonitorMetrics) initMetrics() {
	m.ResourceUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthmon_resource_usage_percent",
			Help: "Last observed resource usage percentage",
		},
		[]string{"resource"}, // cpu, memory, disk
	)

	m.HealthStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmon_health_status",
			Help: "Overall system health (0=healthy, 1=warning, 2=critical)",
		},
	)

	m.ComponentStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthmon_component_status",
			Help: "Dependency status (1=healthy, 0=error, -1=unavailable)",
		},
		[]string{"component"}, // database, cache
	)

	m.TaskCounts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthmon_tasks",
			Help: "Number of tasks by state as seen by the last health check",
		},
		[]string{"state"}, // running, queued, failed_last_hour
	)

	m.QueueWaitSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmon_predicted_queue_wait_seconds",
			Help: "Predicted wait for a newly queued task",
		},
	)

	m.CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_cycles_total",
			Help: "Total monitoring cycles by trigger and result",
		},
		[]string{"trigger", "result"}, // trigger: scheduled, forced; result: ok, panic
	)

	m.CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthmon_cycle_duration_seconds",
			Help:    "Time taken by one monitoring cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	m.ProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_probe_failures_total",
			Help: "Total failed probes by probe name",
		},
		[]string{"probe"},
	)

	m.AlertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_threshold_alerts_total",
			Help: "Threshold alerts emitted by the monitoring loop",
		},
		[]string{"kind"},
	)

	m.AlertsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmon_threshold_alerts_suppressed_total",
			Help: "Threshold alerts suppressed by the per-kind cooldown",
		},
		[]string{"kind"},
	)
}

// RecordResourceUsage sets the usage gauge for a resource
func (m *MonitorMetrics) RecordResourceUsage(resource string, percent float64) {
	m.ResourceUsage.WithLabelValues(resource).Set(percent)
}

// SetHealthStatus records the overall status as a numeric level
func (m *MonitorMetrics) SetHealthStatus(level int) {
	m.HealthStatus.Set(float64(level))
}

// SetComponentStatus records a dependency status as a numeric level
func (m *MonitorMetrics) SetComponentStatus(component string, level int) {
	m.ComponentStatus.WithLabelValues(component).Set(float64(level))
}

func (m *MonitorMetrics) SetTaskCount(state string, count int) {
	m.TaskCounts.WithLabelValues(state).Set(float64(count))
}

func (m *MonitorMetrics) SetQueueWait(seconds int) {
	m.QueueWaitSeconds.Set(float64(seconds))
}

// RecordCycle records one completed monitoring cycle
func (m *MonitorMetrics) RecordCycle(trigger, result string, duration time.Duration) {
	m.CyclesTotal.WithLabelValues(trigger, result).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

func (m *MonitorMetrics) RecordProbeFailure(probe string) {
	m.ProbeFailuresTotal.WithLabelValues(probe).Inc()
}

func (m *MonitorMetrics) RecordAlertEmitted(kind string) {
	m.AlertsEmittedTotal.WithLabelValues(kind).Inc()
}

func (m *MonitorMetrics) RecordAlertSuppressed(kind string) {
	m.AlertsSuppressed.WithLabelValues(kind).Inc()
}

// Describe implements the prometheus.Collector interface
func (m *MonitorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ResourceUsage.Describe(ch)
	m.HealthStatus.Describe(ch)
	m.ComponentStatus.Describe(ch)
	m.TaskCounts.Describe(ch)
	m.QueueWaitSeconds.Describe(ch)
	m.CyclesTotal.Describe(ch)
	m.CycleDuration.Describe(ch)
	m.ProbeFailuresTotal.Describe(ch)
	m.AlertsEmittedTotal.Describe(ch)
	m.AlertsSuppressed.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *MonitorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ResourceUsage.Collect(ch)
	m.HealthStatus.Collect(ch)
	m.ComponentStatus.Collect(ch)
	m.TaskCounts.Collect(ch)
	m.QueueWaitSeconds.Collect(ch)
	m.CyclesTotal.Collect(ch)
	m.CycleDuration.Collect(ch)
	m.ProbeFailuresTotal.Collect(ch)
	m.AlertsEmittedTotal.Collect(ch)
	m.AlertsSuppressed.Collect(ch)
}
