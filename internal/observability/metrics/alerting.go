package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AlertMetrics tracks alert lifecycle events
type AlertMetrics struct {
	AlertsCreated      *prometheus.CounterVec // New alerts by type and severity
	AlertsDeduplicated *prometheus.CounterVec // Repeats folded into an existing alert
	AlertTransitions   *prometheus.CounterVec // Lifecycle transitions by target status
	ActiveAlerts       *prometheus.GaugeVec   // Open alerts by severity
	HandlerPanics      prometheus.Counter     // Recovered panics in alert handlers
}

// NewAlertMetrics creates and registers alert metrics
func NewAlertMetrics(registry *prometheus.Registry) (*AlertMetrics, error) {
	m := &AlertMetrics{
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthmon_alerts_created_total",
				Help: "Total alerts created by type and severity",
			},
			[]string{"alert_type", "severity"},
		),
		AlertsDeduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthmon_alerts_deduplicated_total",
				Help: "Total repeated alerts folded into an existing active alert",
			},
			[]string{"alert_type"},
		),
		AlertTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthmon_alert_transitions_total",
				Help: "Total alert status transitions by target status",
			},
			[]string{"status"}, // acknowledged, resolved, escalated
		),
		ActiveAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "healthmon_active_alerts",
				Help: "Open alerts by severity",
			},
			[]string{"severity"},
		),
		HandlerPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "healthmon_alert_handler_panics_total",
				Help: "Total panics recovered from alert handlers",
			},
		),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register alert metrics: %w", err)
	}
	return m, nil
}

func (m *AlertMetrics) RecordCreated(alertType, severity string) {
	m.AlertsCreated.WithLabelValues(alertType, severity).Inc()
}

func (m *AlertMetrics) RecordDeduplicated(alertType string) {
	m.AlertsDeduplicated.WithLabelValues(alertType).Inc()
}

func (m *AlertMetrics) RecordTransition(status string) {
	m.AlertTransitions.WithLabelValues(status).Inc()
}

// SetActive replaces the open alert gauge with the given per-severity counts
func (m *AlertMetrics) SetActive(bySeverity map[string]int) {
	m.ActiveAlerts.Reset()
	for severity, count := range bySeverity {
		m.ActiveAlerts.WithLabelValues(severity).Set(float64(count))
	}
}

func (m *AlertMetrics) RecordHandlerPanic() {
	m.HandlerPanics.Inc()
}

// Describe implements the prometheus.Collector interface
func (m *AlertMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.AlertsCreated.Describe(ch)
	m.AlertsDeduplicated.Describe(ch)
	m.AlertTransitions.Describe(ch)
	m.ActiveAlerts.Describe(ch)
	m.HandlerPanics.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *AlertMetrics) Collect(ch chan<- prometheus.Metric) {
	m.AlertsCreated.Collect(ch)
	m.AlertsDeduplicated.Collect(ch)
	m.AlertTransitions.Collect(ch)
	m.ActiveAlerts.Collect(ch)
	m.HandlerPanics.Collect(ch)
}
